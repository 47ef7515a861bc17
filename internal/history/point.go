package history

import (
	"sort"

	"github.com/vk/chartgridgo/internal/token"
)

// Point is one plotted sample: epoch-millisecond timestamp and numeric
// value. Non-numeric raw values never become Points; they are discarded at
// decode time.
type Point struct {
	T int64
	V float64
}

// sortPoints orders points ascending by timestamp. Raw decode order is not
// guaranteed monotonic.
func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].T < points[j].T })
}

// Downsample reduces points to at most maxPoints buckets plus the guaranteed
// final input point. Input must be sorted ascending. When no reduction is
// needed (or maxPoints <= 1) the input slice is returned as-is so callers
// can cheaply detect the no-op by identity.
//
// Buckets divide the covered span evenly; each non-empty bucket emits one
// point at its last member's timestamp, valued either by that member
// (SampleLast) or the bucket mean (SampleMean). The final input point is
// appended when the last emitted timestamp differs, preserving the right
// edge for step and line charts.
func Downsample(points []Point, maxPoints int, method token.SampleMethod) []Point {
	if maxPoints <= 1 || len(points) <= maxPoints {
		return points
	}

	first := points[0].T
	last := points[len(points)-1].T
	span := last - first
	if span < 1 {
		span = 1
	}
	bucketSize := float64(span) / float64(maxPoints)

	out := make([]Point, 0, maxPoints+1)
	curIdx := -1
	var curSum float64
	var curCount int
	var curLast Point

	flush := func() {
		if curCount == 0 {
			return
		}
		p := curLast
		if method != token.SampleLast {
			p.V = curSum / float64(curCount)
		}
		out = append(out, p)
	}

	for _, p := range points {
		idx := int(float64(p.T-first) / bucketSize)
		if idx > maxPoints-1 {
			idx = maxPoints - 1
		}
		if idx != curIdx {
			flush()
			curIdx = idx
			curSum = 0
			curCount = 0
		}
		curSum += p.V
		curCount++
		curLast = p
	}
	flush()

	if len(out) == 0 || out[len(out)-1].T != last {
		out = append(out, points[len(points)-1])
	}
	return out
}
