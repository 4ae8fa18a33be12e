package runner

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/killswitch"
	"github.com/aristath/sentinel/internal/risk"
	"github.com/aristath/sentinel/internal/strategy"
)

// marketDataQueueSize bounds the per-runner market-data channel. Ported
// from strategy_runner.py's queue.Queue() (unbounded) with one deliberate
// change: an unbounded channel lets a wedged strategy goroutine pile up
// unreceived ticks forever. Bounding it and dropping the oldest tick under
// pressure (see Feed) is the Go-idiomatic back-pressure policy the
// original never needed because its queue lived in a separate process.
const marketDataQueueSize = 256

// Status is the lifecycle state a Runner reports to its supervisor.
type Status string

const (
	StatusStarted Status = "started"
	StatusPaused  Status = "paused"
	StatusResumed Status = "resumed"
	StatusStopped Status = "stopped"
	StatusExited  Status = "exited"
)

// Runner executes a single strategy subscription on its own goroutine,
// isolated from its supervisor by three channels carrying only structured
// values (domain.Order, domain.MarketData, Command, Result) — never a
// shared pointer into the strategy's internal state. Ported from
// strategy_runner.py's StrategyRunner, substituting a goroutine for a
// multiprocessing.Process (see queue.go's package doc for why).
type Runner struct {
	SubscriptionID string
	UserID         string

	strategy   strategy.Strategy
	context    domain.StrategyContext
	riskLimits domain.RiskLimits
	killSwitch *killswitch.Store

	commands   chan Command
	marketData chan domain.MarketData
	results    chan<- Result

	running      atomic.Bool
	paused       atomic.Bool
	droppedTicks atomic.Int64

	done chan struct{}

	log zerolog.Logger
}

// New creates a Runner. results is the supervisor's shared result channel;
// every Runner writes onto it so the supervisor can multiplex many runners
// with a single receive loop. killSwitch may be nil (e.g. in tests that
// don't exercise the risk gate's kill-switch fast path); a nil store is
// treated as never active.
func New(subscriptionID, userID string, strat strategy.Strategy, ctx domain.StrategyContext, limits domain.RiskLimits, killSwitch *killswitch.Store, results chan<- Result, log zerolog.Logger) *Runner {
	return &Runner{
		SubscriptionID: subscriptionID,
		UserID:         userID,
		strategy:       strat,
		context:        ctx,
		riskLimits:     limits,
		killSwitch:     killSwitch,
		commands:       make(chan Command, 8),
		marketData:     make(chan domain.MarketData, marketDataQueueSize),
		results:        results,
		done:           make(chan struct{}),
		log:            log.With().Str("component", "runner").Str("subscription_id", subscriptionID).Logger(),
	}
}

// Start launches the runner's goroutine. It is an error to call Start more
// than once on the same Runner.
func (r *Runner) Start(ctx context.Context) {
	r.running.Store(true)
	go r.loop(ctx)
}

// Stop sends a STOP command and blocks until the runner's goroutine has
// fully exited or the context is done, whichever comes first.
func (r *Runner) Stop(ctx context.Context) {
	if !r.running.Load() {
		return
	}
	select {
	case r.commands <- Command{Type: CommandStop}:
	case <-ctx.Done():
		return
	}
	select {
	case <-r.done:
	case <-ctx.Done():
	}
}

// Pause sends a PAUSE command without waiting for acknowledgement.
func (r *Runner) Pause() {
	if !r.running.Load() {
		return
	}
	select {
	case r.commands <- Command{Type: CommandPause}:
	default:
	}
}

// Resume sends a RESUME command without waiting for acknowledgement.
func (r *Runner) Resume() {
	if !r.running.Load() || !r.paused.Load() {
		return
	}
	select {
	case r.commands <- Command{Type: CommandResume}:
	default:
	}
}

// Feed delivers a market data tick to the runner, unless paused or
// stopped. If the runner's queue is full, the oldest queued tick is
// dropped to make room — a wedged strategy should never back up its
// supervisor's dispatch loop.
func (r *Runner) Feed(data domain.MarketData) {
	if !r.running.Load() || r.paused.Load() {
		return
	}
	select {
	case r.marketData <- data:
		return
	default:
	}
	select {
	case <-r.marketData:
		r.droppedTicks.Add(1)
	default:
	}
	select {
	case r.marketData <- data:
	default:
	}
}

// IsRunning reports whether the runner's goroutine is still active.
func (r *Runner) IsRunning() bool { return r.running.Load() }

// IsPaused reports whether the runner is currently paused.
func (r *Runner) IsPaused() bool { return r.paused.Load() }

// DroppedTicks returns the count of market-data ticks discarded because the
// runner's queue was full when they arrived.
func (r *Runner) DroppedTicks() int64 { return r.droppedTicks.Load() }

func (r *Runner) emit(result Result) {
	result.SubscriptionID = r.SubscriptionID
	select {
	case r.results <- result:
	default:
		r.log.Warn().Str("result_type", string(result.Type)).Msg("result channel full, dropping result")
	}
}

// loop is the runner's main body, equivalent to strategy_runner.py's
// _run_strategy_process. An exception (panic) raised while processing a
// single tick is caught and reported as an ERROR result without killing
// the goroutine — only an explicit STOP breaks the loop, matching the
// original's behavior where a caught exception is logged and the loop
// continues.
func (r *Runner) loop(ctx context.Context) {
	defer r.running.Store(false)
	defer close(r.done)

	if err := r.safeCall(func() { r.strategy.OnStart(r.context) }); err != nil {
		r.emit(Result{Type: ResultError, Error: err.Error()})
		return
	}
	r.emit(Result{Type: ResultStatus, State: map[string]interface{}{"status": string(StatusStarted)}})

	todayTradeCount := 0

	for {
		select {
		case <-ctx.Done():
			r.safeCall(func() { r.strategy.OnStop(r.context) })
			r.emit(Result{Type: ResultStatus, State: map[string]interface{}{"status": string(StatusStopped)}})
			return

		case cmd := <-r.commands:
			switch cmd.Type {
			case CommandStop:
				r.safeCall(func() { r.strategy.OnStop(r.context) })
				r.emit(Result{Type: ResultStatus, State: map[string]interface{}{"status": string(StatusStopped)}})
				return
			case CommandPause:
				r.safeCall(func() { r.strategy.OnPause(r.context) })
				r.paused.Store(true)
				r.emit(Result{Type: ResultStatus, State: map[string]interface{}{"status": string(StatusPaused)}})
			case CommandResume:
				r.safeCall(func() { r.strategy.OnResume(r.context) })
				r.paused.Store(false)
				r.emit(Result{Type: ResultStatus, State: map[string]interface{}{"status": string(StatusResumed)}})
			}

		case data := <-r.marketData:
			if r.paused.Load() {
				continue
			}
			r.processTick(data, &todayTradeCount)
		}
	}
}

func (r *Runner) processTick(data domain.MarketData, todayTradeCount *int) {
	var order *domain.Order
	err := r.safeCall(func() {
		order = r.strategy.OnMarketData(r.context, data)
	})
	if err != nil {
		r.emit(Result{Type: ResultError, Error: err.Error()})
		return
	}
	if order == nil {
		return
	}

	killSwitchActive := false
	if r.killSwitch != nil {
		if _, active := r.killSwitch.IsStrategyActive(r.UserID, r.SubscriptionID); active {
			killSwitchActive = true
		}
	}

	decision := risk.Evaluate(*order, r.context, *todayTradeCount, killSwitchActive)
	if decision.Allowed {
		r.emit(Result{Type: ResultOrder, Order: order})
		*todayTradeCount++
		return
	}

	r.emit(Result{Type: ResultRiskBlocked, Order: order, Reason: decision.Reason})
	if decision.LimitType == "max_drawdown" || decision.LimitType == "daily_loss" {
		r.emit(Result{Type: ResultKillSwitch, Reason: decision.Reason})
	}
}

// safeCall runs fn and converts a panic into an error, matching
// strategy_runner.py's try/except around every strategy callback: a buggy
// strategy must never take the supervisor down with it.
func (r *Runner) safeCall(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strategy panic: %v", p)
		}
	}()
	fn()
	return nil
}
