package cypher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/nexus/pkg/value"
)

// TxStatus is the lifecycle state of a Transaction.
type TxStatus int

const (
	TxNotStarted TxStatus = iota
	TxActive
	TxCommitted
	TxRolledBack
)

func (s TxStatus) String() string {
	switch s {
	case TxNotStarted:
		return "not_started"
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Transaction is an explicit transaction. Its staged writes form a chain
// of per-statement layers; later statements read the writes of earlier
// ones.
type Transaction struct {
	ID        string
	StartedAt time.Time

	status     TxStatus
	top        *MutationState
	statements int
}

// Status returns the transaction state.
func (t *Transaction) Status() TxStatus { return t.status }

// Statements returns the number of statements that completed inside the
// transaction.
func (t *Transaction) Statements() int { return t.statements }

// Session is a client conversation holding at most one active transaction.
// Statements of one session run one at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	exec     *Executor
	tx       *Transaction
	lastUsed atomic.Int64
	log      *logrus.Entry
}

// NewSession returns a session bound to e.
func (e *Executor) NewSession() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		exec:      e,
	}
	s.log = e.log.WithField("session", s.ID)
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// LastUsed returns when the session last ran a statement.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// Transaction returns the active transaction, or nil.
func (s *Session) Transaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// Begin starts a transaction. It fails with ErrTransactionActive when one
// is already running.
func (s *Session) Begin() (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin()
}

func (s *Session) begin() (*Transaction, error) {
	s.touch()
	if s.tx != nil {
		return nil, ErrTransactionActive
	}
	s.tx = &Transaction{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		status:    TxActive,
	}
	s.log.WithField("tx", s.tx.ID).Debug("transaction started")
	return s.tx, nil
}

// Commit flushes the active transaction to storage. A storage failure
// rolls the transaction back and returns an error wrapping ErrStorage.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx)
}

func (s *Session) commit(ctx context.Context) error {
	s.touch()
	tx := s.tx
	if tx == nil {
		return ErrNoActiveTransaction
	}
	_, span := s.exec.tracer.Start(ctx, "cypher.commit", trace.WithAttributes(
		attribute.String("cypher.tx", tx.ID),
		attribute.Int("cypher.statements", tx.statements),
	))
	defer span.End()

	s.tx = nil
	var err error
	if tx.top != nil {
		err = s.exec.commit(tx.top)
	}
	tx.top = nil
	log := s.log.WithField("tx", tx.ID)
	if err != nil {
		tx.status = TxRolledBack
		transactionsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		log.WithError(err).Error("commit failed, transaction rolled back")
		return err
	}
	tx.status = TxCommitted
	transactionsTotal.WithLabelValues("committed").Inc()
	log.Debug("transaction committed")
	return nil
}

// Rollback discards the active transaction's staged writes.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollback()
}

func (s *Session) rollback() error {
	s.touch()
	tx := s.tx
	if tx == nil {
		return ErrNoActiveTransaction
	}
	s.tx = nil
	tx.top = nil
	tx.status = TxRolledBack
	transactionsTotal.WithLabelValues("rolled_back").Inc()
	s.log.WithField("tx", tx.ID).Debug("transaction rolled back")
	return nil
}

// Execute runs one statement in the session. BEGIN, COMMIT and ROLLBACK
// drive the session transaction. Other statements join the active
// transaction or, without one, commit on their own. A failed statement
// inside a transaction discards only its own writes; the transaction stays
// active.
func (s *Session) Execute(ctx context.Context, query string, params map[string]any) (*ExecuteResult, error) {
	plan, err := s.exec.Prepare(query)
	if err != nil {
		statementsTotal.WithLabelValues(statementResult(err)).Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	switch plan.Statement.Tx {
	case TxBegin:
		tx, err := s.begin()
		if err != nil {
			return nil, err
		}
		return statusResult("Transaction started", tx.ID), nil
	case TxCommit:
		id := s.activeID()
		if err := s.commit(ctx); err != nil {
			return nil, err
		}
		return statusResult("Transaction committed", id), nil
	case TxRollback:
		id := s.activeID()
		if err := s.rollback(); err != nil {
			return nil, err
		}
		return statusResult("Transaction rolled back", id), nil
	}

	if s.tx == nil {
		res, _, err := s.exec.run(ctx, plan, params, nil, true)
		return res, err
	}
	res, layer, err := s.exec.run(ctx, plan, params, s.tx.top, false)
	if err != nil {
		return nil, err
	}
	if !layer.Empty() {
		s.tx.top = layer
	}
	s.tx.statements++
	return res, nil
}

func (s *Session) activeID() string {
	if s.tx == nil {
		return ""
	}
	return s.tx.ID
}

func statusResult(status, txID string) *ExecuteResult {
	return &ExecuteResult{
		Columns: []string{"status", "transaction_id"},
		Rows:    [][]value.Value{{value.String(status), value.String(txID)}},
	}
}
