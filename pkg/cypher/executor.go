// Package cypher implements the query execution kernel: parsing, plan
// caching, pattern matching, staged mutations and transactions over a
// property graph held by a storage.Engine.
//
// A statement runs to completion on the calling goroutine. Every statement
// owns its binding rows and its MutationState; the only shared structures
// are the plan cache and the storage snapshot, both safe for concurrent use.
//
// Example:
//
//	engine := storage.NewMemoryEngine()
//	exec := cypher.NewExecutor(engine, cypher.DefaultOptions())
//	res, err := exec.Execute(ctx, "CREATE (n:Person {name: $name}) RETURN n.name", map[string]any{"name": "Ada"})
package cypher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/nexus/pkg/cache"
	"github.com/orneryd/nexus/pkg/search"
	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// ExecuteResult holds the outcome of one statement.
type ExecuteResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]value.Value `json:"rows"`
	Stats   *QueryStats     `json:"stats,omitempty"`
}

// Options configures an Executor.
type Options struct {
	PlanCache cache.Config
	// StatementTimeout bounds one statement; zero disables the bound.
	StatementTimeout time.Duration
	// SlowQueryThreshold logs statements slower than this at warn level;
	// zero disables slow query logging.
	SlowQueryThreshold time.Duration
	// VectorIndex serves CALL vector.knn. When nil a cosine index over the
	// executor's snapshot is used.
	VectorIndex search.Index
	// VectorMetric picks the similarity of the default index. Ignored when
	// VectorIndex is set.
	VectorMetric search.Metric
	// DefaultK is the neighbour count when vector.knn is called without k.
	DefaultK int
	Logger   *logrus.Logger
}

// DefaultOptions returns a 30s statement timeout, a 100ms slow query
// threshold and the default plan cache.
func DefaultOptions() Options {
	return Options{
		PlanCache:          cache.DefaultConfig(),
		StatementTimeout:   30 * time.Second,
		SlowQueryThreshold: 100 * time.Millisecond,
		DefaultK:           10,
	}
}

// phase is the per-statement execution state.
type phase int

const (
	phaseStart phase = iota
	phaseMatching
	phaseProcessing
	phaseCommitting
	phaseDone
	phaseFailed
)

var phaseNames = [...]string{"Start", "MatchingClauses", "ClauseProcessing", "Committing", "Done", "Failed"}

func (p phase) String() string { return phaseNames[p] }

// Executor runs statements against a storage engine.
type Executor struct {
	snapshot *storage.Snapshot
	plans    *cache.PlanCache[*Plan]
	knn      search.Index
	defaultK int
	timeout  time.Duration
	slow     time.Duration
	log      *logrus.Entry
	tracer   trace.Tracer
}

// NewExecutor returns an executor reading and committing through engine.
func NewExecutor(engine storage.Engine, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	snap := storage.NewSnapshot(engine)
	knn := opts.VectorIndex
	if knn == nil {
		idx := search.NewVectorIndex(snap)
		if opts.VectorMetric != "" {
			idx = idx.WithMetric(opts.VectorMetric)
		}
		knn = idx
	}
	return &Executor{
		snapshot: snap,
		plans:    cache.NewPlanCache[*Plan](opts.PlanCache),
		knn:      knn,
		defaultK: opts.DefaultK,
		timeout:  opts.StatementTimeout,
		slow:     opts.SlowQueryThreshold,
		log:      logger.WithField("component", "cypher"),
		tracer:   otel.Tracer("nexus/cypher"),
	}
}

// Rebind points the executor at another engine. Cached plans stay valid;
// cached storage reads are dropped.
func (e *Executor) Rebind(engine storage.Engine) {
	e.snapshot.Rebind(engine)
}

// Snapshot returns the executor's storage view.
func (e *Executor) Snapshot() *storage.Snapshot { return e.snapshot }

// PlanCache returns the executor's plan cache.
func (e *Executor) PlanCache() *cache.PlanCache[*Plan] { return e.plans }

// Prepare normalizes query and returns its plan, compiling it on a cache
// miss.
func (e *Executor) Prepare(query string) (*Plan, error) {
	return e.plans.GetOrCompile(Normalize(query), Compile)
}

// Execute runs query as an autocommit statement. Transaction control
// statements need a Session.
func (e *Executor) Execute(ctx context.Context, query string, params map[string]any) (*ExecuteResult, error) {
	plan, err := e.Prepare(query)
	if err != nil {
		statementsTotal.WithLabelValues(statementResult(err)).Inc()
		return nil, err
	}
	if plan.Statement.Tx != TxNone {
		return nil, ErrSessionRequired
	}
	res, _, err := e.run(ctx, plan, params, nil, true)
	return res, err
}

// run executes one statement on top of parent. With autocommit set the
// statement's writes are committed before returning; otherwise the new
// layer is returned for the caller's transaction. On error the layer is
// discarded.
func (e *Executor) run(ctx context.Context, plan *Plan, params map[string]any, parent *MutationState, autocommit bool) (res *ExecuteResult, layer *MutationState, err error) {
	ctx, span := e.tracer.Start(ctx, "cypher.execute",
		trace.WithAttributes(
			attribute.Bool("cypher.writes", plan.Writes),
			attribute.Bool("cypher.autocommit", autocommit),
		))
	defer span.End()

	start := time.Now()
	log := e.log.WithField("query", plan.Text)
	defer func() {
		elapsed := time.Since(start)
		statementDuration.Observe(elapsed.Seconds())
		statementsTotal.WithLabelValues(statementResult(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(Classify(err)))
		} else {
			span.SetAttributes(attribute.Int("cypher.rows", len(res.Rows)))
			span.SetStatus(codes.Ok, "")
		}
		if e.slow > 0 && elapsed > e.slow {
			log.WithField("duration", elapsed).Warn("slow statement")
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vals, err := value.FromGoMap(params)
	if err != nil {
		return nil, nil, err
	}

	cur := phaseStart
	transition := func(next phase) {
		if next == cur {
			return
		}
		log.WithFields(logrus.Fields{"from": cur, "to": next}).Debug("statement state")
		cur = next
	}

	x := &execution{
		ctx:      ctx,
		state:    NewMutationState(e.snapshot, parent),
		params:   vals,
		knn:      e.knn,
		defaultK: e.defaultK,
	}
	res, err = e.process(x, plan, transition)
	if err != nil {
		transition(phaseFailed)
		return nil, nil, err
	}

	if autocommit {
		transition(phaseCommitting)
		if err = e.commit(x.state); err != nil {
			log.WithError(err).Error("commit failed")
			transition(phaseFailed)
			return nil, nil, err
		}
	}
	transition(phaseDone)
	return res, x.state, nil
}

// process drives the clauses of one statement in order.
func (e *Executor) process(x *execution, plan *Plan, transition func(phase)) (*ExecuteResult, error) {
	rows := []*BindingContext{NewBindingContext()}
	res := &ExecuteResult{Columns: plan.Columns, Rows: [][]value.Value{}}
	var err error
	for _, c := range plan.Statement.Query.Clauses {
		switch cl := c.(type) {
		case *MatchClause:
			transition(phaseMatching)
			rows, err = x.match(rows, cl)
		case *VectorSearchClause:
			transition(phaseMatching)
			rows, err = x.vectorSearch(rows, cl)
		case *CreateClause:
			transition(phaseProcessing)
			rows, err = x.create(rows, cl)
		case *MergeClause:
			transition(phaseProcessing)
			rows, err = x.merge(rows, cl)
		case *SetClause:
			transition(phaseProcessing)
			err = x.set(rows, cl)
		case *RemoveClause:
			transition(phaseProcessing)
			err = x.remove(rows, cl)
		case *DeleteClause:
			transition(phaseProcessing)
			err = x.delete(rows, cl)
		case *ReturnClause:
			transition(phaseProcessing)
			res.Rows, err = x.project(rows, cl, plan.Columns)
		default:
			err = fmt.Errorf("%w: clause %T", ErrUnsupportedExpression, c)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := x.state.Validate(); err != nil {
		return nil, err
	}
	if plan.Writes {
		stats := x.stats
		res.Stats = &stats
	}
	return res, nil
}

// commit flushes the chain ending at top to storage and refreshes the
// snapshot before returning.
func (e *Executor) commit(top *MutationState) error {
	cs := Flatten(top)
	if cs.Empty() {
		return nil
	}
	if err := e.snapshot.Engine().Commit(cs); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	e.snapshot.Refresh()
	return nil
}
