package matrix

import (
	"fmt"
	"sort"
	"strconv"
)

// BaselineCompressor is the pseudo-compressor that passes data through
// without spawning a process.
const BaselineCompressor = "cat"

// Baseline is the no-op test case establishing the identity ratio.
var Baseline = TestCase{Compressor: BaselineCompressor}

// TestCase is one benchmarkable configuration.
type TestCase struct {
	Compressor string `json:"compressor"`
	Options    string `json:"options"`
	Level      string `json:"level"`
}

// IsBaseline reports whether the test case is the pass-through baseline.
func (tc TestCase) IsBaseline() bool {
	return tc.Compressor == BaselineCompressor
}

// String returns a display label, e.g. "xz -e -9".
func (tc TestCase) String() string {
	s := tc.Compressor

	if tc.Options != "" {
		s += " " + tc.Options
	}

	if tc.Level != "" {
		s += " " + tc.Level
	}

	return s
}

// Entry describes the inclusive level range benchmarked for one
// compressor and option string.
type Entry struct {
	Compressor string `yaml:"compressor" mapstructure:"compressor"`
	Options    string `yaml:"options,omitempty" mapstructure:"options"`
	MinLevel   int    `yaml:"min_level" mapstructure:"min_level"`
	MaxLevel   int    `yaml:"max_level" mapstructure:"max_level"`
}

// Validate checks the entry for errors.
func (e *Entry) Validate() error {
	if e.Compressor == "" {
		return fmt.Errorf("compressor is required")
	}

	if e.MinLevel < 0 || e.MaxLevel < 0 {
		return fmt.Errorf("%s: levels must not be negative", e.Compressor)
	}

	if e.MinLevel > e.MaxLevel {
		return fmt.Errorf("%s: min_level %d is greater than max_level %d",
			e.Compressor, e.MinLevel, e.MaxLevel)
	}

	return nil
}

// DefaultEntries returns the level table used when no matrix is configured.
func DefaultEntries() []Entry {
	return []Entry{
		{Compressor: "zstd", MinLevel: 1, MaxLevel: 19},
		{Compressor: "zstd", Options: "-T0", MinLevel: 1, MaxLevel: 19},
		{Compressor: "gzip", MinLevel: 1, MaxLevel: 9},
		{Compressor: "lz4", MinLevel: 1, MaxLevel: 9},
		{Compressor: "xz", MinLevel: 0, MaxLevel: 9},
		{Compressor: "xz", Options: "-e", MinLevel: 0, MaxLevel: 9},
	}
}

// Generate enumerates every test case described by entries, followed by the
// baseline. Duplicates keep their first position.
func Generate(entries []Entry) []TestCase {
	size := 1
	for _, e := range entries {
		if e.MaxLevel >= e.MinLevel {
			size += e.MaxLevel - e.MinLevel + 1
		}
	}

	cases := make([]TestCase, 0, size)
	seen := make(map[TestCase]struct{}, size)

	add := func(tc TestCase) {
		if _, ok := seen[tc]; ok {
			return
		}

		seen[tc] = struct{}{}
		cases = append(cases, tc)
	}

	for _, e := range entries {
		for level := e.MinLevel; level <= e.MaxLevel; level++ {
			add(TestCase{
				Compressor: e.Compressor,
				Options:    e.Options,
				Level:      "-" + strconv.Itoa(level),
			})
		}
	}

	add(Baseline)

	return cases
}

// Compressors returns the sorted distinct compressor names in cases.
func Compressors(cases []TestCase) []string {
	seen := make(map[string]struct{}, 8)
	names := make([]string, 0, 8)

	for _, tc := range cases {
		if _, ok := seen[tc.Compressor]; ok {
			continue
		}

		seen[tc.Compressor] = struct{}{}
		names = append(names, tc.Compressor)
	}

	sort.Strings(names)

	return names
}

// Sort orders cases by compressor, options and numeric level.
func Sort(cases []TestCase) {
	sort.SliceStable(cases, func(i, j int) bool {
		return Less(cases[i], cases[j])
	})
}

// Less reports whether a sorts before b. Levels compare numerically so
// "-2" sorts before "-10".
func Less(a, b TestCase) bool {
	if a.Compressor != b.Compressor {
		return a.Compressor < b.Compressor
	}

	if a.Options != b.Options {
		return a.Options < b.Options
	}

	la, errA := levelNumber(a.Level)
	lb, errB := levelNumber(b.Level)

	switch {
	case errA == nil && errB == nil && la != lb:
		return la < lb
	case errA != nil && errB == nil:
		return true
	case errA == nil && errB != nil:
		return false
	}

	return a.Level < b.Level
}

func levelNumber(level string) (int, error) {
	if len(level) < 2 || level[0] != '-' {
		return 0, fmt.Errorf("invalid level %q", level)
	}

	return strconv.Atoi(level[1:])
}
