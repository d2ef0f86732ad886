package bus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/conclave/internal/domain"
)

// SQLiteTransport persists bus messages, making the core channels
// durable across restarts.
type SQLiteTransport struct {
	db *sql.DB
}

// NewSQLiteTransport opens (or creates) the bus message table.
func NewSQLiteTransport(dsn string) (*SQLiteTransport, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus database: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bus_messages (
			message_id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			ts DATETIME NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT,
			correlation_id TEXT,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bus_messages_channel ON bus_messages(channel, ts)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("bus migration failed: %w", err)
		}
	}
	return &SQLiteTransport{db: db}, nil
}

// Close closes the underlying database.
func (t *SQLiteTransport) Close() error {
	return t.db.Close()
}

// Publish writes the message durably.
func (t *SQLiteTransport) Publish(ctx context.Context, channel string, msg domain.Message) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO bus_messages (message_id, channel, ts, type, source, target, correlation_id, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, channel, msg.Timestamp, string(msg.Type), msg.Source,
		msg.Target, msg.CorrelationID, string(msg.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert bus message: %w", err)
	}
	return nil
}

// Poll returns messages strictly newer than since, oldest first.
func (t *SQLiteTransport) Poll(ctx context.Context, channel string, since time.Time, limit int, filter Filter) ([]domain.Message, error) {
	query := `SELECT message_id, ts, type, source, target, correlation_id, payload
		FROM bus_messages WHERE channel = ? AND ts > ?`
	args := []interface{}{channel, since}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	query += " ORDER BY ts ASC, message_id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", channel, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var msgType string
		var target, correlationID, payload sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.Timestamp, &msgType, &msg.Source,
			&target, &correlationID, &payload); err != nil {
			return nil, fmt.Errorf("scan bus message: %w", err)
		}
		msg.Type = domain.MessageType(msgType)
		msg.Target = target.String
		msg.CorrelationID = correlationID.String
		if payload.Valid {
			msg.Payload = []byte(payload.String)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
