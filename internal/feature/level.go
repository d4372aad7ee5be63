package feature

import "fmt"

// DetailLevel controls how much of a file a feature renders, from the bare
// path up to full numbered source. Levels form a total order; a higher level
// never renders fewer bytes for the same path (the catalog documents the one
// exception around interval splitting).
type DetailLevel int

const (
	LevelFileName DetailLevel = iota
	LevelCMap
	LevelCMapFull
	LevelInterval
	LevelCode
)

var levelNames = map[DetailLevel]string{
	LevelFileName: "file_name",
	LevelCMap:     "cmap",
	LevelCMapFull: "cmap_full",
	LevelInterval: "interval",
	LevelCode:     "code",
}

func (l DetailLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("detail_level(%d)", int(l))
}

// ParseLevel converts a config or CLI string to a DetailLevel.
func ParseLevel(s string) (DetailLevel, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelFileName, fmt.Errorf("unknown detail level %q", s)
}

// FallbackChain returns the degradation order used when a feature does not
// fit the remaining budget at its natural level. With structural summaries
// available the chain walks down through the code-map levels; without them
// the only retreat is the bare file name.
func FallbackChain(structuralSummaries bool) []DetailLevel {
	if structuralSummaries {
		return []DetailLevel{LevelCMapFull, LevelCMap, LevelFileName}
	}
	return []DetailLevel{LevelFileName}
}
