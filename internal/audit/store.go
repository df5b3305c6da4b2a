package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_audits (
	id              TEXT PRIMARY KEY,
	document_ref    TEXT NOT NULL DEFAULT '',
	original_length INTEGER NOT NULL,
	names_redacted  INTEGER NOT NULL,
	pii_redacted    INTEGER NOT NULL,
	is_clean        BOOLEAN NOT NULL,
	summary         TEXT NOT NULL,
	issues          TEXT NOT NULL,
	report          TEXT NOT NULL,
	analysis        TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS idx_redaction_audits_created_at ON redaction_audits (created_at)`

const columns = `id, document_ref, original_length, names_redacted, pii_redacted, is_clean,
	summary, issues, report, analysis, model, created_at`

// Store persists redaction audit records in PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the configured database and ensures the schema exists
func NewStore(cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("driver", cfg.Driver),
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// initialize checks the connection and creates the audit table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	for _, stmt := range []string{schema, indexSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores a record, assigning its ID and timestamp when unset
func (s *Store) Insert(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	r, err := toRow(record)
	if err != nil {
		return err
	}

	query := s.db.Rebind(`
		INSERT INTO redaction_audits (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.DocumentRef, r.OriginalLength, r.NamesRedacted, r.PIIRedacted, r.Clean,
		r.Summary, r.Issues, r.Report, r.Analysis, r.Model, r.CreatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to insert audit record", zap.Error(err), zap.String("id", r.ID))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.logger.Debug("Audit record stored",
		zap.String("id", r.ID),
		zap.Int("names_redacted", r.NamesRedacted),
		zap.Int("pii_redacted", r.PIIRedacted))

	return nil
}

// Get loads a single record by ID
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var r row
	query := s.db.Rebind(`SELECT ` + columns + ` FROM redaction_audits WHERE id = ?`)
	if err := s.db.GetContext(ctx, &r, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return fromRow(r)
}

// List returns records newest first
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := ""
	args := []interface{}{}
	if opts.DocumentRef != "" {
		where = "WHERE document_ref = ?"
		args = append(args, opts.DocumentRef)
	}
	args = append(args, opts.Limit, opts.Offset)

	query := s.db.Rebind(fmt.Sprintf(`
		SELECT %s FROM redaction_audits
		%s
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, columns, where))

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]*Record, 0, len(rows))
	for _, r := range rows {
		record, err := fromRow(r)
		if err != nil {
			s.logger.Warn("Skipping unreadable audit record", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// PurgeBefore deletes records created before cutoff and returns how many went
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM redaction_audits WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged records: %w", err)
	}
	return deleted, nil
}

// GetStats returns aggregate counts over all records
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_clean THEN 1 ELSE 0 END), 0) AS clean,
			COALESCE(SUM(names_redacted), 0) AS names,
			COALESCE(SUM(pii_redacted), 0) AS pii
		FROM redaction_audits`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func toRow(record *Record) (row, error) {
	summary, err := json.Marshal(record.Summary)
	if err != nil {
		return row{}, fmt.Errorf("failed to encode summary: %w", err)
	}

	issues := record.Issues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return row{}, fmt.Errorf("failed to encode issues: %w", err)
	}

	return row{
		ID:             record.ID,
		DocumentRef:    record.DocumentRef,
		OriginalLength: record.OriginalLength,
		NamesRedacted:  record.NamesRedacted,
		PIIRedacted:    record.PIIRedacted,
		Clean:          record.Clean,
		Summary:        string(summary),
		Issues:         string(issuesJSON),
		Report:         record.Report,
		Analysis:       record.Analysis,
		Model:          record.Model,
		CreatedAt:      record.CreatedAt.UTC(),
	}, nil
}

func fromRow(r row) (*Record, error) {
	record := &Record{
		ID:             r.ID,
		DocumentRef:    r.DocumentRef,
		OriginalLength: r.OriginalLength,
		NamesRedacted:  r.NamesRedacted,
		PIIRedacted:    r.PIIRedacted,
		Clean:          r.Clean,
		Report:         r.Report,
		Analysis:       r.Analysis,
		Model:          r.Model,
		CreatedAt:      r.CreatedAt,
	}

	if err := json.Unmarshal([]byte(r.Summary), &record.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Issues), &record.Issues); err != nil {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	return record, nil
}

// maskDatabaseURL hides the password in a connection URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	userInfo := url[:at]
	start := 0
	if scheme >= 0 {
		start = scheme + 3
	}
	colon := strings.Index(userInfo[start:], ":")
	if colon < 0 {
		return url
	}
	return userInfo[:start+colon+1] + "***" + url[at:]
}
