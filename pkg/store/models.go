package store

import "github.com/ethpandaops/compressoor/pkg/matrix"

// Test is one row of the test matrix.
type Test struct {
	Compressor string `gorm:"column:compressor;primaryKey"`
	Options    string `gorm:"column:options;primaryKey"`
	Level      string `gorm:"column:level;primaryKey"`
}

// TableName implements gorm's tabler interface.
func (Test) TableName() string { return "tests" }

// TestCase converts the row to its matrix value.
func (t Test) TestCase() matrix.TestCase {
	return matrix.TestCase{
		Compressor: t.Compressor,
		Options:    t.Options,
		Level:      t.Level,
	}
}

// Result is the single recorded outcome of a test case for one machine
// identity. Durations are seconds; memory and sizes are bytes.
type Result struct {
	Machine        string  `gorm:"column:machine;primaryKey" json:"machine"`
	Arch           string  `gorm:"column:arch;primaryKey" json:"arch"`
	Compressor     string  `gorm:"column:compressor;primaryKey" json:"compressor"`
	Options        string  `gorm:"column:options;primaryKey" json:"options"`
	Level          string  `gorm:"column:level;primaryKey" json:"level"`
	Succeeded      bool    `gorm:"column:succeeded" json:"succeeded"`
	CompDuration   float64 `gorm:"column:comp_duration" json:"comp_duration"`
	CompMaxMem     int64   `gorm:"column:comp_max_mem" json:"comp_max_mem"`
	DecompDuration float64 `gorm:"column:decomp_duration" json:"decomp_duration"`
	DecompMaxMem   int64   `gorm:"column:decomp_max_mem" json:"decomp_max_mem"`
	InputSize      int64   `gorm:"column:input_size" json:"input_size"`
	OutputSize     int64   `gorm:"column:output_size" json:"output_size"`
}

// TableName implements gorm's tabler interface.
func (Result) TableName() string { return "results" }

// TestCase returns the test case the result belongs to.
func (r Result) TestCase() matrix.TestCase {
	return matrix.TestCase{
		Compressor: r.Compressor,
		Options:    r.Options,
		Level:      r.Level,
	}
}

// Outcome is what a single test case run produced. A failed outcome carries
// zero metrics.
type Outcome struct {
	Succeeded      bool
	CompDuration   float64
	CompMaxMem     int64
	DecompDuration float64
	DecompMaxMem   int64
	InputSize      int64
	OutputSize     int64
}

// FailedOutcome is recorded for test cases that could not be measured.
var FailedOutcome = Outcome{}

// Analysis is a row of the analysis view: raw result columns plus the
// derived display label and output/input ratio as a percentage.
type Analysis struct {
	Machine        string  `gorm:"column:machine" json:"machine"`
	Arch           string  `gorm:"column:arch" json:"arch"`
	Compressor     string  `gorm:"column:compressor" json:"compressor"`
	Options        string  `gorm:"column:options" json:"options"`
	Level          string  `gorm:"column:level" json:"level"`
	Label          string  `gorm:"column:label" json:"label"`
	Succeeded      bool    `gorm:"column:succeeded" json:"succeeded"`
	CompDuration   float64 `gorm:"column:comp_duration" json:"comp_duration"`
	CompMaxMem     int64   `gorm:"column:comp_max_mem" json:"comp_max_mem"`
	DecompDuration float64 `gorm:"column:decomp_duration" json:"decomp_duration"`
	DecompMaxMem   int64   `gorm:"column:decomp_max_mem" json:"decomp_max_mem"`
	InputSize      int64   `gorm:"column:input_size" json:"input_size"`
	OutputSize     int64   `gorm:"column:output_size" json:"output_size"`
	RatioPct       float64 `gorm:"column:ratio_pct" json:"ratio_pct"`
}

// Summary counts the progress of one machine identity through the matrix.
type Summary struct {
	Machine   string `json:"machine"`
	Arch      string `json:"arch"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
}
