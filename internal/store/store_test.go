package store

import (
	"testing"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/state.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening applies nothing new.
	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_RefusesNewerSchema(t *testing.T) {
	path := t.TempDir() + "/state.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	_, err = db.sql.Exec("INSERT INTO schema_migrations (version) VALUES (?)", v+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path, logging.New(nil, "silent"))
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestDSN(t *testing.T) {
	assert.NotContains(t, dsn(":memory:"), "journal_mode")
	assert.Contains(t, dsn("/tmp/x.db"), "journal_mode%28WAL%29")
	assert.Contains(t, dsn("/tmp/x.db"), "busy_timeout%285000%29")
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"network_cursor", "buffers", "sessions"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- State tests, run against both implementations ---

func states(t *testing.T) map[string]State {
	return map[string]State{
		"sqlite": NewSQLiteState(testDB(t)),
		"memory": NewMemoryState(),
	}
}

func TestState_CursorUnknown(t *testing.T) {
	for name, st := range states(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := st.LastMessage("alice", 42)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestState_CursorOnlyAdvances(t *testing.T) {
	for name, st := range states(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SaveLastMessage("alice", 42, 100))
			require.NoError(t, st.SaveLastMessage("alice", 42, 90))

			id, ok, err := st.LastMessage("alice", 42)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, domain.MsgID(100), id)

			require.NoError(t, st.SaveLastMessage("alice", 42, 150))
			id, _, _ = st.LastMessage("alice", 42)
			assert.Equal(t, domain.MsgID(150), id)

			_, ok, _ = st.LastMessage("alice", 7)
			assert.False(t, ok)
			_, ok, _ = st.LastMessage("bob", 42)
			assert.False(t, ok)
		})
	}
}

func TestState_Buffers(t *testing.T) {
	for name, st := range states(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SaveBuffer("alice", domain.BufferInfo{ID: 5, NetworkID: 42, Type: domain.BufferQuery, Name: "bob"}))
			require.NoError(t, st.SaveBuffer("alice", domain.BufferInfo{ID: 2, NetworkID: 42, Type: domain.BufferChannel, Name: "#go"}))
			require.NoError(t, st.SaveBuffer("alice", domain.BufferInfo{ID: 3, NetworkID: 7, Type: domain.BufferChannel, Name: "#rust"}))
			require.NoError(t, st.SaveBuffer("carol", domain.BufferInfo{ID: 9, NetworkID: 42, Type: domain.BufferChannel, Name: "#go"}))

			// rename keeps the id, a network move is ignored
			require.NoError(t, st.SaveBuffer("alice", domain.BufferInfo{ID: 5, NetworkID: 42, Type: domain.BufferQuery, Name: "robert"}))
			require.NoError(t, st.SaveBuffer("alice", domain.BufferInfo{ID: 2, NetworkID: 7, Type: domain.BufferChannel, Name: "#go"}))

			got, err := st.Buffers("alice", 42)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, domain.BufferInfo{ID: 2, NetworkID: 42, Type: domain.BufferChannel, Name: "#go"}, got[0])
			assert.Equal(t, domain.BufferInfo{ID: 5, NetworkID: 42, Type: domain.BufferQuery, Name: "robert"}, got[1])

			got, err = st.Buffers("alice", 7)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "#rust", got[0].Name)
		})
	}
}

// --- SessionLog tests ---

func TestSessionLog_RecordAndRecent(t *testing.T) {
	log := NewSessionLog(testDB(t))

	first := &domain.SessionInfo{User: "alice", Remote: "127.0.0.1:5000", Status: domain.StatusConnecting,
		StartedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, log.Record(first))
	assert.NotEmpty(t, first.ID)

	second := &domain.SessionInfo{User: "bob", Status: domain.StatusConnecting,
		StartedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, log.Record(second))

	first.Status = domain.StatusError
	first.LastError = "login failed: bad password"
	first.Protocol = "datastream"
	require.NoError(t, log.Record(first))

	got, err := log.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, domain.StatusError, got[1].Status)
	assert.Equal(t, "login failed: bad password", got[1].LastError)
	assert.Equal(t, "datastream", got[1].Protocol)
	assert.Equal(t, "127.0.0.1:5000", got[1].Remote)
	assert.Equal(t, first.StartedAt, got[1].StartedAt)

	got, err = log.Recent(1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSessionLog_NetworkID(t *testing.T) {
	log := NewSessionLog(testDB(t))
	info := &domain.SessionInfo{User: "alice", Status: domain.StatusConnected, NetworkID: 42}
	require.NoError(t, log.Record(info))

	got, err := log.Recent(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NetworkID(42), got[0].NetworkID)
	assert.Equal(t, domain.StatusConnected, got[0].Status)
}
