package cypher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// flakyEngine fails Commit while failing is set.
type flakyEngine struct {
	storage.Engine
	failing atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyEngine) Commit(cs *storage.ChangeSet) error {
	if f.failing.Load() {
		return errDiskFull
	}
	return f.Engine.Commit(cs)
}

func sessionRun(t *testing.T, s *Session, query string) *ExecuteResult {
	t.Helper()
	res, err := s.Execute(context.Background(), query, nil)
	require.NoError(t, err, query)
	return res
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	exec, _ := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {x: 1})", nil)
	s := exec.NewSession()

	res := sessionRun(t, s, "BEGIN")
	assert.Equal(t, value.String("Transaction started"), res.Rows[0][0])
	tx := s.Transaction()
	require.NotNil(t, tx)
	assert.Equal(t, TxActive, tx.Status())

	sessionRun(t, s, "MATCH (n:Item) SET n.x = 2")
	res = sessionRun(t, s, "MATCH (n:Item) RETURN n.x")
	assert.Equal(t, [][]value.Value{{value.Int(2)}}, res.Rows, "the transaction sees its own writes")

	other := run(t, exec, "MATCH (n:Item) RETURN n.x", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, other.Rows, "uncommitted writes stay private")

	sessionRun(t, s, "ROLLBACK")
	assert.Equal(t, TxRolledBack, tx.Status())
	assert.Nil(t, s.Transaction())

	res = sessionRun(t, s, "MATCH (n:Item) RETURN n.x")
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
}

func TestTransactionCommitPublishesWrites(t *testing.T) {
	exec, engine := newTestExecutor(t)
	run(t, exec, "CREATE (:Item {x: 1})", nil)
	s := exec.NewSession()

	tx, err := s.Begin()
	require.NoError(t, err)
	sessionRun(t, s, "MATCH (n:Item) SET n.x = 2")
	sessionRun(t, s, "CREATE (:Item {x: 3})")
	sessionRun(t, s, "MATCH (n:Item) SET n.x = n.x * 10")
	assert.Equal(t, 3, tx.Statements())

	gen := engine.Generation()
	require.NoError(t, s.Commit(context.Background()))
	assert.Equal(t, TxCommitted, tx.Status())
	assert.Equal(t, gen+1, engine.Generation(), "one atomic commit for the whole transaction")

	res := run(t, exec, "MATCH (n:Item) RETURN n.x ORDER BY n.x", nil)
	assert.Equal(t, []value.Value{value.Int(20), value.Int(30)}, column(res, 0))
	assert.Equal(t, engine.Generation(), exec.Snapshot().Generation(), "snapshot refreshed after commit")
}

func TestTransactionStateErrors(t *testing.T) {
	exec, _ := newTestExecutor(t)
	s := exec.NewSession()

	assert.ErrorIs(t, s.Commit(context.Background()), ErrNoActiveTransaction)
	assert.ErrorIs(t, s.Rollback(), ErrNoActiveTransaction)
	_, err := s.Execute(context.Background(), "COMMIT", nil)
	assert.ErrorIs(t, err, ErrNoActiveTransaction)

	_, err = s.Begin()
	require.NoError(t, err)
	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrTransactionActive)
	_, err = s.Execute(context.Background(), "BEGIN TRANSACTION", nil)
	assert.ErrorIs(t, err, ErrTransactionActive)
	assert.Equal(t, KindTransaction, Classify(err))

	require.NoError(t, s.Rollback())
	_, err = s.Begin()
	assert.NoError(t, err, "a new transaction can start after the previous one ended")
}

func TestTransactionFailedStatementKeepsTransaction(t *testing.T) {
	exec, _ := newTestExecutor(t)
	s := exec.NewSession()
	sessionRun(t, s, "BEGIN")
	sessionRun(t, s, "CREATE (:Item {x: 1})")

	_, err := s.Execute(context.Background(), "MATCH (n:Item) SET n.x = 2, n.y = NOT 1", nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.NotNil(t, s.Transaction())

	res := sessionRun(t, s, "MATCH (n:Item) RETURN n.x, n.y")
	assert.Equal(t, [][]value.Value{{value.Int(1), value.Null{}}}, res.Rows, "the failed statement's writes are discarded")

	sessionRun(t, s, "COMMIT")
	res = run(t, exec, "MATCH (n:Item) RETURN n.x", nil)
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
}

func TestTransactionCommitStorageFailure(t *testing.T) {
	mem := storage.NewMemoryEngine()
	defer mem.Close()
	engine := &flakyEngine{Engine: mem}
	exec := NewExecutor(engine, DefaultOptions())
	s := exec.NewSession()

	tx, err := s.Begin()
	require.NoError(t, err)
	sessionRun(t, s, "CREATE (:Item)")

	engine.failing.Store(true)
	err = s.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, KindStorage, Classify(err))
	assert.Equal(t, TxRolledBack, tx.Status())
	assert.Nil(t, s.Transaction())

	engine.failing.Store(false)
	res := sessionRun(t, s, "MATCH (n:Item) RETURN count(n)")
	assert.Equal(t, [][]value.Value{{value.Int(0)}}, res.Rows)
}

func TestAutocommitStorageFailure(t *testing.T) {
	mem := storage.NewMemoryEngine()
	defer mem.Close()
	engine := &flakyEngine{Engine: mem}
	engine.failing.Store(true)
	exec := NewExecutor(engine, DefaultOptions())

	_, err := exec.Execute(context.Background(), "CREATE (:Item)", nil)
	assert.ErrorIs(t, err, ErrStorage)

	res, err := exec.Execute(context.Background(), "RETURN 1", nil)
	require.NoError(t, err, "read-only statements do not commit")
	assert.Equal(t, [][]value.Value{{value.Int(1)}}, res.Rows)
}

func TestTransactionDeleteAcrossStatements(t *testing.T) {
	exec, engine := newTestExecutor(t)
	s := exec.NewSession()
	sessionRun(t, s, "BEGIN")
	sessionRun(t, s, "CREATE (:Tmp {x: 1})-[:R]->(:Tmp {x: 2})")
	sessionRun(t, s, "MATCH (n:Tmp {x: 1}) DETACH DELETE n")
	res := sessionRun(t, s, "MATCH (n:Tmp) RETURN n.x")
	assert.Equal(t, [][]value.Value{{value.Int(2)}}, res.Rows)
	sessionRun(t, s, "COMMIT")

	nodes, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), nodes)
	edges, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Zero(t, edges)
}

func TestSessionManager(t *testing.T) {
	exec, _ := newTestExecutor(t)
	m := NewSessionManager(exec, time.Minute)

	s, err := m.Create()
	require.NoError(t, err)
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, KindSessionNotFound, Classify(err))

	tx, err := s.Begin()
	require.NoError(t, err)
	assert.Zero(t, m.CleanupExpired(time.Now()))
	assert.Equal(t, 1, m.CleanupExpired(time.Now().Add(2*time.Minute)))
	assert.Equal(t, TxRolledBack, tx.Status(), "expiry rolls back the open transaction")
	assert.Zero(t, m.Len())

	s2, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, m.Remove(s2.ID))
	assert.ErrorIs(t, m.Remove(s2.ID), ErrSessionNotFound)

	s3, err := m.Create()
	require.NoError(t, err)
	tx3, err := s3.Begin()
	require.NoError(t, err)
	m.Close()
	assert.Equal(t, TxRolledBack, tx3.Status())
	_, err = m.Create()
	assert.ErrorIs(t, err, ErrSessionsClosed)
}

func TestSessionManagerRun(t *testing.T) {
	exec, _ := newTestExecutor(t)
	m := NewSessionManager(exec, time.Millisecond)
	_, err := m.Create()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
