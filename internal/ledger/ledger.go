// Package ledger provides an append-only activity history for lightlink.
// It records instance events for diagnostics and auditing; it is not a
// state store and nothing is ever restored from it.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known event types recorded by the device instance.
const (
	EventCommandAccepted = "command_accepted"
	EventCommandRejected = "command_rejected"
	EventRemoteUpdate    = "remote_update"
	EventRemoteError     = "remote_error"
	EventStatePushed     = "state_pushed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventID   string
	DeviceID  string
	EventType string
	Timestamp time.Time
	Payload   map[string]any
}

// Ledger provides append-only event logging for one device
type Ledger struct {
	db       *sql.DB
	deviceID string
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB, deviceID string) *Ledger {
	return &Ledger{db: db, deviceID: deviceID}
}

// Record implements the instance Recorder contract: it appends the
// event and never fails the caller. Write errors are returned by
// Append for callers that care.
func (l *Ledger) Record(event string, payload map[string]any) {
	_ = l.Append(event, payload)
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().Unix()
	_, err = l.db.Exec(`
		INSERT INTO event_ledger (event_id, device_id, event_type, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), l.deviceID, eventType, now, string(payloadJSON))

	return err
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_id, device_id, event_type, timestamp, payload
		FROM event_ledger
		WHERE event_type = ? AND device_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, eventType, l.deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetByTimeRange returns entries within a time range
func (l *Ledger) GetByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_id, device_id, event_type, timestamp, payload
		FROM event_ledger
		WHERE device_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, l.deviceID, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.DeviceID, &entry.EventType, &timestamp, &payloadStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
