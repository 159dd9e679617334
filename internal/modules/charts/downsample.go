package charts

import "math"

// Downsample picks at most target points by stride sampling. Input no longer than
// target is returned unchanged. A non-positive target keeps only the first point.
func Downsample[T any](points []T, target int) []T {
	if target <= 0 {
		if len(points) == 0 {
			return points
		}
		return points[:1]
	}
	if len(points) <= target {
		return points
	}

	stride := float64(len(points)) / float64(target)
	out := make([]T, 0, target)
	for i := 0; i < target; i++ {
		idx := int(math.Round(float64(i) * stride))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		out = append(out, points[idx])
	}
	return out
}
