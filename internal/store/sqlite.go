package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/conclave/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// Serializes appends per session id so seq assignment is race-free.
	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db, writers: make(map[string]*sync.Mutex)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_records (
			record_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			domains TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			escalated INTEGER NOT NULL DEFAULT 0,
			snapshot TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE(session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_session ON session_records(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_status ON session_records(status, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) writerFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[sessionID]
	if !ok {
		w = &sync.Mutex{}
		s.writers[sessionID] = w
	}
	return w
}

// Append durably writes one session transition. The record's Seq is
// assigned here: one session id, one writer at a time.
func (s *SQLiteStore) Append(ctx context.Context, record *domain.SessionRecord) error {
	if record.SessionID == "" {
		return fmt.Errorf("append: missing session_id: %w", ErrAuditWriteFailed)
	}

	w := s.writerFor(record.SessionID)
	w.Lock()
	defer w.Unlock()

	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM session_records WHERE session_id = ?`, record.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append %s: %v: %w", record.SessionID, err, ErrAuditWriteFailed)
	}
	record.Seq = 0
	if seq.Valid {
		record.Seq = seq.Int64 + 1
	}

	domains, err := json.Marshal(record.Domains)
	if err != nil {
		return fmt.Errorf("append %s: %v: %w", record.SessionID, err, ErrAuditWriteFailed)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_records (record_id, session_id, seq, status, domains, confidence, escalated, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordID, record.SessionID, record.Seq, string(record.Status), string(domains),
		record.Confidence, boolToInt(record.Escalated), nullableRaw(record.Snapshot), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append %s: %v: %w", record.SessionID, err, ErrAuditWriteFailed)
	}
	return nil
}

// Query returns audit records matching the filter, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.SessionRecord, error) {
	query := `SELECT record_id, session_id, seq, status, domains, confidence, escalated, snapshot, created_at
		FROM session_records`
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Domain != "" {
		conditions = append(conditions, "domains LIKE ?")
		args = append(args, `%"`+filter.Domain+`"%`)
	}
	if filter.MinConfidence != nil {
		conditions = append(conditions, "confidence >= ?")
		args = append(args, *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		conditions = append(conditions, "confidence <= ?")
		args = append(args, *filter.MaxConfidence)
	}
	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.Until)
	}
	if filter.Escalated != nil {
		conditions = append(conditions, "escalated = ?")
		args = append(args, boolToInt(*filter.Escalated))
	}
	if filter.LatestOnly {
		conditions = append(conditions,
			"seq = (SELECT MAX(seq) FROM session_records r2 WHERE r2.session_id = session_records.session_id)")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY session_id ASC, seq ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.SessionRecord
	for rows.Next() {
		var r domain.SessionRecord
		var status, domains string
		var escalated int
		var snapshot sql.NullString
		if err := rows.Scan(&r.RecordID, &r.SessionID, &r.Seq, &status, &domains,
			&r.Confidence, &escalated, &snapshot, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = domain.SessionStatus(status)
		r.Escalated = escalated != 0
		if domains != "" && domains != "null" {
			if err := json.Unmarshal([]byte(domains), &r.Domains); err != nil {
				return nil, fmt.Errorf("scan record domains: %w", err)
			}
		}
		if snapshot.Valid {
			r.Snapshot = json.RawMessage(snapshot.String)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats aggregates finalized sessions per domain: session count, mean
// aggregate confidence and escalation rate. Computed from the stored
// records on every call.
func (s *SQLiteStore) Stats(ctx context.Context) ([]domain.DomainStats, error) {
	finalized, err := s.Query(ctx, domain.RecordFilter{
		Status:     domain.SessionStatusFinalized,
		LatestOnly: true,
	})
	if err != nil {
		return nil, err
	}

	type acc struct {
		count     int
		sum       float64
		escalated int
	}
	byDomain := make(map[string]*acc)
	for _, r := range finalized {
		for _, d := range r.Domains {
			a, ok := byDomain[d]
			if !ok {
				a = &acc{}
				byDomain[d] = a
			}
			a.count++
			a.sum += r.Confidence
			if r.Escalated {
				a.escalated++
			}
		}
	}

	stats := make([]domain.DomainStats, 0, len(byDomain))
	for d, a := range byDomain {
		stats = append(stats, domain.DomainStats{
			Domain:         d,
			Sessions:       a.count,
			MeanConfidence: a.sum / float64(a.count),
			EscalationRate: float64(a.escalated) / float64(a.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Domain < stats[j].Domain })
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
