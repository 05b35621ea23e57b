package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethpandaops/compressoor/pkg/config"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	insertBatchSize = 100

	// sqlitePragmas enable foreign key enforcement (the results -> tests
	// cascade) and wait on a locked database instead of failing.
	sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

// Store persists the test matrix and one result per machine identity and
// test case.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Initialize creates the schema if absent and inserts any test case
	// not yet present. It is safe to call against a populated store.
	Initialize(ctx context.Context, cases []matrix.TestCase) error

	// PendingWork returns the test cases with no recorded result for id.
	PendingWork(ctx context.Context, id machine.Identity) ([]matrix.TestCase, error)

	// RecordResult inserts or overwrites the result of tc for id.
	RecordResult(
		ctx context.Context, id machine.Identity, tc matrix.TestCase, outcome Outcome,
	) error

	// Reset deletes every result recorded for id and returns how many
	// rows were removed.
	Reset(ctx context.Context, id machine.Identity) (int64, error)

	// KnownCompressors returns the distinct compressors in the matrix.
	KnownCompressors(ctx context.Context) ([]string, error)

	ListIdentities(ctx context.Context) ([]machine.Identity, error)
	ListResults(ctx context.Context, id machine.Identity) ([]Result, error)
	ListAnalysis(ctx context.Context, id machine.Identity) ([]Analysis, error)
	Summarize(ctx context.Context, id machine.Identity) (*Summary, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log     logrus.FieldLogger
	cfg     *config.DatabaseConfig
	db      *gorm.DB
	dialect dialect
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(s.cfg.SQLite.Path))
		s.dialect = sqliteDialect
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
		s.dialect = postgresDialect
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening result database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps pragmas
	// and in-memory databases consistent.
	if s.cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()

		return fmt.Errorf("connecting to result database: %w", err)
	}

	s.db = db

	s.log.WithField("driver", s.cfg.Driver).
		Info("Result database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Initialize implements Store.
func (s *store) Initialize(ctx context.Context, cases []matrix.TestCase) error {
	if err := s.createSchema(ctx); err != nil {
		return err
	}

	return s.populate(ctx, cases)
}

func (s *store) createSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range s.dialect.statements() {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("creating schema: %w", err)
			}
		}

		return nil
	})
}

func (s *store) populate(ctx context.Context, cases []matrix.TestCase) error {
	if len(cases) == 0 {
		return nil
	}

	rows := make([]Test, 0, len(cases))
	for _, tc := range cases {
		rows = append(rows, Test{
			Compressor: tc.Compressor,
			Options:    tc.Options,
			Level:      tc.Level,
		})
	}

	var added int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(rows, insertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("populating test matrix: %w", result.Error)
		}

		added = result.RowsAffected

		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"cases": len(rows),
		"added": added,
	}).Debug("Test matrix populated")

	return nil
}

// PendingWork implements Store.
func (s *store) PendingWork(
	ctx context.Context, id machine.Identity,
) ([]matrix.TestCase, error) {
	var tests []Test
	if err := s.db.WithContext(ctx).Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("listing test matrix: %w", err)
	}

	var done []Result
	if err := s.db.WithContext(ctx).
		Select("compressor", "options", "level").
		Where("machine = ? AND arch = ?", id.Machine, id.Arch).
		Find(&done).Error; err != nil {
		return nil, fmt.Errorf("listing recorded results: %w", err)
	}

	recorded := make(map[matrix.TestCase]struct{}, len(done))
	for _, r := range done {
		recorded[r.TestCase()] = struct{}{}
	}

	pending := make([]matrix.TestCase, 0, len(tests))

	for _, t := range tests {
		tc := t.TestCase()
		if _, ok := recorded[tc]; ok {
			continue
		}

		pending = append(pending, tc)
	}

	matrix.Sort(pending)

	return pending, nil
}

// RecordResult implements Store.
func (s *store) RecordResult(
	ctx context.Context,
	id machine.Identity,
	tc matrix.TestCase,
	outcome Outcome,
) error {
	row := &Result{
		Machine:        id.Machine,
		Arch:           id.Arch,
		Compressor:     tc.Compressor,
		Options:        tc.Options,
		Level:          tc.Level,
		Succeeded:      outcome.Succeeded,
		CompDuration:   outcome.CompDuration,
		CompMaxMem:     outcome.CompMaxMem,
		DecompDuration: outcome.DecompDuration,
		DecompMaxMem:   outcome.DecompMaxMem,
		InputSize:      outcome.InputSize,
		OutputSize:     outcome.OutputSize,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(row).Error; err != nil {
			return fmt.Errorf("recording result for %s: %w", tc, err)
		}

		return nil
	})
}

// Reset implements Store.
func (s *store) Reset(ctx context.Context, id machine.Identity) (int64, error) {
	var removed int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("machine = ? AND arch = ?", id.Machine, id.Arch).
			Delete(&Result{})
		if result.Error != nil {
			return fmt.Errorf("resetting results for %s: %w", id, result.Error)
		}

		removed = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// KnownCompressors implements Store.
func (s *store) KnownCompressors(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Table("compressors").
		Order("compressor").
		Pluck("compressor", &names).Error; err != nil {
		return nil, fmt.Errorf("listing compressors: %w", err)
	}

	return names, nil
}

// ListIdentities returns every machine identity with at least one result.
func (s *store) ListIdentities(ctx context.Context) ([]machine.Identity, error) {
	var ids []machine.Identity
	if err := s.db.WithContext(ctx).
		Model(&Result{}).
		Distinct("machine", "arch").
		Order("machine, arch").
		Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("listing machine identities: %w", err)
	}

	return ids, nil
}

// ListResults returns the raw results for id. Empty identity fields match
// every value.
func (s *store) ListResults(
	ctx context.Context, id machine.Identity,
) ([]Result, error) {
	var results []Result
	if err := filterIdentity(s.db.WithContext(ctx), id).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Machine != b.Machine {
			return a.Machine < b.Machine
		}

		if a.Arch != b.Arch {
			return a.Arch < b.Arch
		}

		return matrix.Less(a.TestCase(), b.TestCase())
	})

	return results, nil
}

// ListAnalysis returns analysis view rows for id. Empty identity fields
// match every value.
func (s *store) ListAnalysis(
	ctx context.Context, id machine.Identity,
) ([]Analysis, error) {
	var rows []Analysis
	if err := filterIdentity(s.db.WithContext(ctx).Table("analysis"), id).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing analysis: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Machine != b.Machine {
			return a.Machine < b.Machine
		}

		if a.Arch != b.Arch {
			return a.Arch < b.Arch
		}

		return matrix.Less(
			matrix.TestCase{Compressor: a.Compressor, Options: a.Options, Level: a.Level},
			matrix.TestCase{Compressor: b.Compressor, Options: b.Options, Level: b.Level},
		)
	})

	return rows, nil
}

// Summarize counts recorded and pending test cases for id.
func (s *store) Summarize(ctx context.Context, id machine.Identity) (*Summary, error) {
	var total, succeeded, failed int64

	db := s.db.WithContext(ctx)

	if err := db.Model(&Test{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting tests: %w", err)
	}

	if err := db.Model(&Result{}).
		Where("machine = ? AND arch = ? AND succeeded = ?", id.Machine, id.Arch, true).
		Count(&succeeded).Error; err != nil {
		return nil, fmt.Errorf("counting succeeded results: %w", err)
	}

	if err := db.Model(&Result{}).
		Where("machine = ? AND arch = ? AND succeeded = ?", id.Machine, id.Arch, false).
		Count(&failed).Error; err != nil {
		return nil, fmt.Errorf("counting failed results: %w", err)
	}

	return &Summary{
		Machine:   id.Machine,
		Arch:      id.Arch,
		Total:     int(total),
		Succeeded: int(succeeded),
		Failed:    int(failed),
		Pending:   int(total - succeeded - failed),
	}, nil
}

func filterIdentity(db *gorm.DB, id machine.Identity) *gorm.DB {
	if id.Machine != "" {
		db = db.Where("machine = ?", id.Machine)
	}

	if id.Arch != "" {
		db = db.Where("arch = ?", id.Arch)
	}

	return db
}

// sqliteDSN appends the connection pragmas to a SQLite path.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}

	return path + "?" + sqlitePragmas
}
