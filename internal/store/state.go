package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
)

// State is the per-user resume state the bridge keeps between sessions:
// the last message seen on each network and the buffers the core has
// announced.
type State interface {
	LastMessage(user string, network domain.NetworkID) (domain.MsgID, bool, error)
	SaveLastMessage(user string, network domain.NetworkID, id domain.MsgID) error
	SaveBuffer(user string, b domain.BufferInfo) error
	Buffers(user string, network domain.NetworkID) ([]domain.BufferInfo, error)
}

// SQLiteState implements State on top of DB.
type SQLiteState struct {
	db *DB
}

// NewSQLiteState creates a state store using the given database.
func NewSQLiteState(db *DB) *SQLiteState {
	return &SQLiteState{db: db}
}

// LastMessage returns the cursor for (user, network). ok is false when the
// network has never been seen.
func (s *SQLiteState) LastMessage(user string, network domain.NetworkID) (domain.MsgID, bool, error) {
	var id int64
	err := s.db.sql.QueryRow(
		`SELECT last_msg_id FROM network_cursor WHERE user = ? AND network_id = ?`,
		user, int64(network),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading cursor: %w", err)
	}
	return domain.MsgID(id), true, nil
}

// SaveLastMessage moves the cursor forward. An id at or below the stored
// one is ignored.
func (s *SQLiteState) SaveLastMessage(user string, network domain.NetworkID, id domain.MsgID) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO network_cursor (user, network_id, last_msg_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user, network_id) DO UPDATE SET
		   last_msg_id = max(last_msg_id, excluded.last_msg_id),
		   updated_at = excluded.updated_at`,
		user, int64(network), int64(id), time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// SaveBuffer records a buffer. A buffer never moves to another network, so
// only its name and group are updated on conflict.
func (s *SQLiteState) SaveBuffer(user string, b domain.BufferInfo) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO buffers (user, buffer_id, network_id, name, type, group_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user, buffer_id) DO UPDATE SET
		   name = excluded.name,
		   group_id = excluded.group_id
		 WHERE buffers.network_id = excluded.network_id`,
		user, int64(b.ID), int64(b.NetworkID), b.Name, int64(b.Type), int64(b.GroupID),
	)
	if err != nil {
		return fmt.Errorf("saving buffer %d: %w", b.ID, err)
	}
	return nil
}

// Buffers lists the known buffers of a network ordered by id.
func (s *SQLiteState) Buffers(user string, network domain.NetworkID) ([]domain.BufferInfo, error) {
	rows, err := s.db.sql.Query(
		`SELECT buffer_id, network_id, name, type, group_id
		 FROM buffers WHERE user = ? AND network_id = ? ORDER BY buffer_id`,
		user, int64(network),
	)
	if err != nil {
		return nil, fmt.Errorf("listing buffers: %w", err)
	}
	defer rows.Close()

	var out []domain.BufferInfo
	for rows.Next() {
		var id, net, typ, group int64
		var b domain.BufferInfo
		if err := rows.Scan(&id, &net, &b.Name, &typ, &group); err != nil {
			return nil, fmt.Errorf("scanning buffer: %w", err)
		}
		b.ID = domain.BufferID(id)
		b.NetworkID = domain.NetworkID(net)
		b.Type = domain.BufferType(typ)
		b.GroupID = uint32(group)
		out = append(out, b)
	}
	return out, rows.Err()
}
