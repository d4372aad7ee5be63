package feature

import (
	"fmt"
	"math"
)

// Interval is a 1-based line range with an exclusive end, so {3, 7} covers
// lines 3, 4, 5 and 6. The zero value means "no interval".
type Interval struct {
	Start int
	End   int
}

// Whole marks an entire file regardless of its length. Used for paths that
// are wholly new relative to a diff baseline.
var Whole = Interval{Start: 1, End: math.MaxInt32}

// IsZero reports whether the interval is unset.
func (iv Interval) IsZero() bool {
	return iv.Start == 0 && iv.End == 0
}

// Contains reports whether the 1-based line falls inside the interval.
func (iv Interval) Contains(line int) bool {
	return line >= iv.Start && line < iv.End
}

// Intersects reports whether two intervals share at least one line.
func (iv Interval) Intersects(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Adjacent reports whether other begins exactly where iv ends.
func (iv Interval) Adjacent(other Interval) bool {
	return iv.End == other.Start
}

// Lines returns the number of lines covered.
func (iv Interval) Lines() int {
	if iv.End <= iv.Start {
		return 0
	}
	return iv.End - iv.Start
}

// String prints the range with an inclusive end, matching the ref form shown
// to users ("3-6" for {3, 7}).
func (iv Interval) String() string {
	return fmt.Sprintf("%d-%d", iv.Start, iv.End-1)
}
