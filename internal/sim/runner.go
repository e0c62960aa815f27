package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairEngine/internal/dex"
	"pairEngine/internal/model"
	"pairEngine/internal/pair"
	"pairEngine/internal/registry"
	"pairEngine/internal/storage"
	"pairEngine/internal/token"
)

// DefaultFactory is used when the scenario names none.
var DefaultFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")

// ErrUnexpectedSuccess is returned when a step marked with expect succeeds.
var ErrUnexpectedSuccess = errors.New("sim: step was expected to fail")

// Rejections receives the class of every failed pair operation.
type Rejections interface {
	RecordRejected(op, class string)
}

// Options wires a runner to its outputs. All fields are optional.
type Options struct {
	Logs       storage.Storage
	States     storage.StateStore
	Sink       pair.EventSink
	Rejections Rejections
	Initial    []model.PairState
	Logger     *zap.Logger
}

// Result summarizes a run.
type Result struct {
	Steps    int
	Expected int
	Logs     int
	States   []model.PairState
}

// Runner executes a scenario. A runner is single-use and not safe for
// concurrent use.
type Runner struct {
	scenario Scenario
	opts     Options
	logger   *zap.Logger

	ledger   *token.Ledger
	callees  *pair.Callees
	registry *registry.Registry
	tokens   map[string]token.Token
	byAddr   map[common.Address]token.Token
	now      uint32

	step     int
	logIndex uint64
	pending  []model.LogRecord
	encErr   error
	logCount int
}

func NewRunner(sc Scenario, opts Options) (*Runner, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		scenario: sc,
		opts:     opts,
		logger:   logger,
		ledger:   token.NewLedger(),
		callees:  pair.NewCallees(),
		tokens:   make(map[string]token.Token, len(sc.Tokens)),
		byAddr:   make(map[common.Address]token.Token, len(sc.Tokens)),
		now:      sc.StartTime,
	}
	factory := DefaultFactory
	if sc.Factory != "" {
		factory = common.HexToAddress(sc.Factory)
	}
	r.registry = registry.New(registry.Options{
		Address: factory,
		Callees: r.callees,
		Journal: r.ledger,
		Sink:    r,
		Clock:   func() uint32 { return r.now },
		Logger:  logger,
	})

	for _, spec := range sc.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))
		addr := TokenAddress(spec)
		var t token.Token = token.NewStandard(r.ledger, addr)
		if strings.EqualFold(spec.Kind, "silent") {
			t = token.NewSilent(r.ledger, addr)
		}
		r.tokens[symbol] = t
		r.byAddr[addr] = t
	}

	for _, state := range opts.Initial {
		if err := r.restore(state); err != nil {
			return nil, fmt.Errorf("restore pair %s: %w", state.Address.Hex(), err)
		}
	}
	return r, nil
}

// Registry exposes the pairs created by the run.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Ledger exposes the balances of the run.
func (r *Runner) Ledger() *token.Ledger { return r.ledger }

func (r *Runner) restore(state model.PairState) error {
	tokenA, okA := r.byAddr[state.TokenA]
	tokenB, okB := r.byAddr[state.TokenB]
	if !okA || !okB {
		return fmt.Errorf("tokens %s/%s are not declared", state.TokenA.Hex(), state.TokenB.Hex())
	}
	p, err := r.registry.RestorePair(tokenA, tokenB, state)
	if err != nil {
		return err
	}
	// the ledger starts empty; back the restored reserves with balances
	reserveA, reserveB, ts := p.Reserves()
	r.ledger.Mint(state.TokenA, p.Address(), reserveA)
	r.ledger.Mint(state.TokenB, p.Address(), reserveB)
	if ts > r.now {
		r.now = ts
	}
	return nil
}

// Emit implements pair.EventSink. Events are buffered as log records for
// the current step and flushed when the step ends.
func (r *Runner) Emit(event model.Event) {
	if r.opts.Sink != nil {
		r.opts.Sink.Emit(event)
	}
	record, err := dex.EncodeLog(event)
	if err != nil {
		if r.encErr == nil {
			r.encErr = fmt.Errorf("encode %s: %w", event.EventName(), err)
		}
		return
	}
	record.ChainID = r.scenario.ChainID
	record.BlockNumber = uint64(r.step)
	record.LogIndex = r.logIndex
	record.Timestamp = uint64(r.now)
	record.Step = r.step
	r.logIndex++
	r.pending = append(r.pending, record)
}

// Run executes every step, flushing logs after each one, and saves the
// final pair states.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{}
	for i, step := range r.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.step = i + 1
		r.logIndex = 0

		err := r.execute(ctx, step)
		r.ledger.Commit()
		if flushErr := r.flush(ctx); flushErr != nil {
			return res, flushErr
		}
		res.Steps++

		switch {
		case step.Expect != "" && err == nil:
			return res, fmt.Errorf("step %d (%s): %w: %s", r.step, step, ErrUnexpectedSuccess, step.Expect)
		case step.Expect != "" && !strings.EqualFold(pair.Classify(err).String(), step.Expect):
			return res, fmt.Errorf("step %d (%s): expected %s failure: %w", r.step, step, step.Expect, err)
		case step.Expect != "":
			res.Expected++
			r.logger.Info("step failed as expected",
				zap.Int("step", r.step),
				zap.String("op", step.Op),
				zap.String("class", step.Expect),
				zap.Error(err),
			)
		case err != nil:
			return res, fmt.Errorf("step %d (%s): %w", r.step, step, err)
		default:
			r.logger.Debug("step done", zap.Int("step", r.step), zap.String("op", step.Op))
		}
	}
	res.Logs = r.logCount

	for _, p := range r.registry.AllPairs() {
		res.States = append(res.States, p.Snapshot())
	}
	if r.opts.States != nil {
		if err := r.opts.States.PutPairStates(ctx, res.States); err != nil {
			return res, fmt.Errorf("save pair states: %w", err)
		}
	}
	r.logger.Info("scenario done",
		zap.Int("steps", res.Steps),
		zap.Int("expected_failures", res.Expected),
		zap.Int("logs", res.Logs),
		zap.Int("pairs", len(res.States)),
	)
	return res, nil
}

func (r *Runner) flush(ctx context.Context) error {
	if r.encErr != nil {
		err := r.encErr
		r.encErr = nil
		return err
	}
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil
	r.logCount += len(batch)
	if r.opts.Logs == nil {
		return nil
	}
	if err := r.opts.Logs.PutLogBatch(ctx, batch); err != nil {
		return fmt.Errorf("write logs: %w", err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, step Step) error {
	var err error
	switch step.Op {
	case OpFund:
		err = r.fund(step)
	case OpMint:
		err = r.mint(step)
	case OpBurn:
		err = r.burn(step)
	case OpSwap:
		err = r.swap(ctx, step)
	case OpFlash:
		err = r.flash(step)
	case OpDonate:
		err = r.donate(step)
	case OpSkim:
		err = r.withPair(step, func(p *pair.Pair) error { return p.Skim(NameAddress(step.To)) })
	case OpSync:
		err = r.withPair(step, func(p *pair.Pair) error { return p.Sync() })
	case OpWait:
		r.now += step.Seconds
	case OpFeeOn:
		r.registry.SetFeeTo(NameAddress(step.To))
	case OpFeeOff:
		r.registry.SetFeeTo(common.Address{})
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil && r.opts.Rejections != nil {
		r.opts.Rejections.RecordRejected(step.Op, pair.Classify(err).String())
	}
	return err
}
