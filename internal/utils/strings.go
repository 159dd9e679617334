// Package utils holds small parsing helpers shared by config and the API.
package utils

import "strings"

// ParseCSV splits a comma-separated list and returns the trimmed, non-empty
// values in order. Returns nil when nothing is left.
func ParseCSV(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
