package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/qbridge/internal/domain"
)

// SessionLog records bridged sessions and their last known status.
type SessionLog struct {
	db *DB
}

// NewSessionLog creates a session log using the given database.
func NewSessionLog(db *DB) *SessionLog {
	return &SessionLog{db: db}
}

// Record inserts or updates a session. A missing ID is filled in.
func (s *SessionLog) Record(info *domain.SessionInfo) error {
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO sessions (id, user, remote, status, protocol, network_id, last_error, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   protocol = excluded.protocol,
		   network_id = excluded.network_id,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		info.ID, info.User, info.Remote, info.Status.String(), info.Protocol,
		int64(info.NetworkID), info.LastError,
		info.StartedAt.UTC().Format(time.DateTime), time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("session", info.ID).Msg("failed to record session")
		return fmt.Errorf("recording session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first. A limit of 0 defaults
// to 20.
func (s *SessionLog) Recent(limit int) ([]domain.SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.sql.Query(
		`SELECT id, user, remote, status, protocol, network_id, last_error, started_at
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionInfo
	for rows.Next() {
		var info domain.SessionInfo
		var status, started string
		var network int64
		if err := rows.Scan(&info.ID, &info.User, &info.Remote, &status, &info.Protocol,
			&network, &info.LastError, &started); err != nil {
			continue
		}
		info.Status = parseStatus(status)
		info.NetworkID = domain.NetworkID(network)
		info.StartedAt, _ = time.Parse(time.DateTime, started)
		out = append(out, info)
	}
	return out, rows.Err()
}

// parseStatus maps rows written by a newer build to StatusError.
func parseStatus(s string) domain.Status {
	if st, ok := domain.ParseStatus(s); ok {
		return st
	}
	return domain.StatusError
}
