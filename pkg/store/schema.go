package store

import "fmt"

// dialect holds the per-driver differences in the schema DDL.
type dialect struct {
	boolType   string
	boolFalse  string
	boolCheck  string
	realType   string
	createView string
}

var (
	sqliteDialect = dialect{
		boolType:  "INTEGER",
		boolFalse: "0",
		boolCheck: ",\n\tCONSTRAINT results_succeeded_ck CHECK (succeeded IN (0, 1))",
		realType:  "REAL",
		// SQLite has no CREATE OR REPLACE VIEW.
		createView: "CREATE VIEW IF NOT EXISTS",
	}
	postgresDialect = dialect{
		boolType:   "BOOLEAN",
		boolFalse:  "FALSE",
		realType:   "DOUBLE PRECISION",
		createView: "CREATE OR REPLACE VIEW",
	}
)

// statements returns the schema DDL. Every statement tolerates an existing
// schema so initialization can run against a populated database.
func (d dialect) statements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS tests (
	compressor TEXT NOT NULL,
	options    TEXT NOT NULL,
	level      TEXT NOT NULL,

	CONSTRAINT tests_pk PRIMARY KEY (compressor, options, level)
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS results (
	machine         TEXT   NOT NULL,
	arch            TEXT   NOT NULL,
	compressor      TEXT   NOT NULL,
	options         TEXT   NOT NULL,
	level           TEXT   NOT NULL,
	succeeded       %[1]s  NOT NULL DEFAULT %[2]s,
	comp_duration   %[3]s  NOT NULL,
	comp_max_mem    BIGINT NOT NULL,
	decomp_duration %[3]s  NOT NULL,
	decomp_max_mem  BIGINT NOT NULL,
	input_size      BIGINT NOT NULL,
	output_size     BIGINT NOT NULL,

	CONSTRAINT results_pk PRIMARY KEY (machine, arch, compressor, options, level),
	CONSTRAINT results_tests_fk FOREIGN KEY (compressor, options, level)
		REFERENCES tests (compressor, options, level) ON DELETE CASCADE,
	CONSTRAINT results_comp_duration_ck CHECK (comp_duration >= 0),
	CONSTRAINT results_comp_max_mem_ck CHECK (comp_max_mem >= 0),
	CONSTRAINT results_decomp_duration_ck CHECK (decomp_duration >= 0),
	CONSTRAINT results_decomp_max_mem_ck CHECK (decomp_max_mem >= 0),
	CONSTRAINT results_input_size_ck CHECK (input_size >= 0),
	CONSTRAINT results_output_size_ck CHECK (output_size >= 0)%[4]s
)`, d.boolType, d.boolFalse, d.realType, d.boolCheck),
		`CREATE INDEX IF NOT EXISTS results_tests ON results (compressor, options, level)`,
		d.createView + ` compressors AS
	SELECT DISTINCT compressor FROM tests`,
		d.createView + ` compressor_options AS
	SELECT DISTINCT compressor, options FROM tests`,
		d.createView + ` analysis AS
	SELECT
		machine,
		arch,
		compressor,
		options,
		level,
		compressor
			|| CASE WHEN options = '' THEN '' ELSE ' ' || options END
			|| CASE WHEN level = '' THEN '' ELSE ' ' || level END AS label,
		succeeded,
		comp_duration,
		comp_max_mem,
		decomp_duration,
		decomp_max_mem,
		input_size,
		output_size,
		CAST(CASE WHEN input_size > 0
			THEN 100.0 * output_size / input_size
			ELSE 0.0 END AS DOUBLE PRECISION) AS ratio_pct
	FROM results`,
	}
}
