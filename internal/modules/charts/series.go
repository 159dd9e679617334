package charts

// MaxSeriesPoints bounds a live series; the oldest points are evicted first.
const MaxSeriesPoints = 1000

// Series is a bounded, ordered buffer of chart points. It is not safe for
// concurrent use; a Merger owns one.
type Series struct {
	points []Point
	max    int
}

// NewSeries creates a series holding at most max points.
// A non-positive max uses MaxSeriesPoints.
func NewSeries(max int) *Series {
	if max <= 0 {
		max = MaxSeriesPoints
	}
	return &Series{max: max}
}

// Replace swaps the whole buffer for points, keeping the newest max when the
// list is longer than the bound.
func (s *Series) Replace(points []Point) {
	if len(points) > s.max {
		points = points[len(points)-s.max:]
	}
	s.points = append(make([]Point, 0, len(points)), points...)
}

// AppendTick appends p unless it carries the same timestamp as the last point.
// It reports whether the point was appended.
func (s *Series) AppendTick(p Point) bool {
	if n := len(s.points); n > 0 && s.points[n-1].SameTime(p) {
		return false
	}

	s.points = append(s.points, p)
	if over := len(s.points) - s.max; over > 0 {
		s.points = append(s.points[:0:0], s.points[over:]...)
	}
	return true
}

// Points returns a copy of the buffer.
func (s *Series) Points() []Point {
	return append([]Point(nil), s.points...)
}

// Len returns the number of buffered points.
func (s *Series) Len() int {
	return len(s.points)
}

// Last returns the newest point.
func (s *Series) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}
