package runner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/killswitch"
	"github.com/aristath/sentinel/internal/strategy"
)

// fakeStrategy is a minimal strategy.Strategy used to drive the runner
// deterministically in tests, without depending on a real strategy's
// crossover math.
type fakeStrategy struct {
	onStartCalls  int
	onStopCalls   int
	onPauseCalls  int
	onResumeCalls int
	nextOrder     *domain.Order
	panicOnTick   bool
}

func (f *fakeStrategy) OnStart(ctx domain.StrategyContext)  { f.onStartCalls++ }
func (f *fakeStrategy) OnStop(ctx domain.StrategyContext)   { f.onStopCalls++ }
func (f *fakeStrategy) OnPause(ctx domain.StrategyContext)  { f.onPauseCalls++ }
func (f *fakeStrategy) OnResume(ctx domain.StrategyContext) { f.onResumeCalls++ }
func (f *fakeStrategy) OnMarketData(ctx domain.StrategyContext, data domain.MarketData) *domain.Order {
	if f.panicOnTick {
		panic("boom")
	}
	return f.nextOrder
}
func (f *fakeStrategy) OnOrderFilled(order domain.Order, fillPrice domain.MarketData, fillQuantity int64) {
}
func (f *fakeStrategy) GetState() map[string]interface{}      { return nil }
func (f *fakeStrategy) SetState(state map[string]interface{})  {}
func (f *fakeStrategy) GetConfigurableParams() []strategy.ConfigurableParam { return nil }
func (f *fakeStrategy) ApplyConfig(config map[string]interface{})          {}

func newTestContext() domain.StrategyContext {
	return domain.StrategyContext{
		StrategyID:     "strat-1",
		SubscriptionID: "sub-1",
		Capital:        decimal.NewFromInt(100000),
		Limits: domain.RiskLimits{
			MaxPositions:         5,
			MaxDrawdownPercent:   decimal.NewFromInt(20),
			MaxOrderValuePercent: decimal.NewFromInt(50),
		},
	}
}

func drainUntil(t *testing.T, results chan Result, want ResultType, timeout time.Duration) Result {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case r := <-results:
			if r.Type == want {
				return r
			}
		case <-deadline:
			t.Fatalf("timed out waiting for result type %s", want)
		}
	}
}

func TestRunner_StartEmitsStarted(t *testing.T) {
	strat := &fakeStrategy{}
	results := make(chan Result, 16)
	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, nil, results, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	res := drainUntil(t, results, ResultStatus, time.Second)
	assert.Equal(t, "started", res.State["status"])
	assert.Equal(t, 1, strat.onStartCalls)

	r.Stop(context.Background())
	assert.False(t, r.IsRunning())
	assert.Equal(t, 1, strat.onStopCalls)
}

func TestRunner_FeedGeneratesOrder(t *testing.T) {
	order := &domain.Order{
		Symbol:      "INFY",
		Signal:      domain.SignalBuy,
		Quantity:    10,
		MarketPrice: decimal.NewFromInt(100),
		StopLoss:    decimal.NewFromInt(95),
	}
	strat := &fakeStrategy{nextOrder: order}
	results := make(chan Result, 16)
	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, nil, results, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	drainUntil(t, results, ResultStatus, time.Second)

	r.Feed(domain.MarketData{Symbol: "INFY", LTP: decimal.NewFromInt(100)})

	res := drainUntil(t, results, ResultOrder, time.Second)
	require.NotNil(t, res.Order)
	assert.Equal(t, "INFY", res.Order.Symbol)

	r.Stop(context.Background())
}

func TestRunner_RiskBlockedOrderTriggersKillSwitchOnDrawdown(t *testing.T) {
	order := &domain.Order{
		Symbol:      "INFY",
		Signal:      domain.SignalBuy,
		Quantity:    10,
		MarketPrice: decimal.NewFromInt(100),
	}
	strat := &fakeStrategy{nextOrder: order}
	results := make(chan Result, 16)

	ctx := newTestContext()
	ctx.TotalPnL = decimal.NewFromInt(-50000) // 50% drawdown, limit is 20%

	r := New("sub-1", "user-1", strat, ctx, domain.RiskLimits{}, nil, results, zerolog.Nop())
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(runCtx)
	drainUntil(t, results, ResultStatus, time.Second)

	r.Feed(domain.MarketData{Symbol: "INFY", LTP: decimal.NewFromInt(100)})

	blocked := drainUntil(t, results, ResultRiskBlocked, time.Second)
	assert.Contains(t, blocked.Reason, "max drawdown")

	killSwitch := drainUntil(t, results, ResultKillSwitch, time.Second)
	assert.Contains(t, killSwitch.Reason, "max drawdown")

	r.Stop(context.Background())
}

func TestRunner_PauseStopsDispatchingTicks(t *testing.T) {
	order := &domain.Order{Symbol: "INFY", Signal: domain.SignalBuy, Quantity: 1, MarketPrice: decimal.NewFromInt(100)}
	strat := &fakeStrategy{nextOrder: order}
	results := make(chan Result, 16)
	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, nil, results, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	drainUntil(t, results, ResultStatus, time.Second)

	r.Pause()
	drainUntil(t, results, ResultStatus, time.Second) // "paused" status
	assert.True(t, r.IsPaused())

	r.Feed(domain.MarketData{Symbol: "INFY"})

	select {
	case res := <-results:
		t.Fatalf("expected no result while paused, got %+v", res)
	case <-time.After(150 * time.Millisecond):
	}

	r.Resume()
	drainUntil(t, results, ResultStatus, time.Second) // "resumed" status
	r.Stop(context.Background())
}

func TestRunner_FeedDropsOldestWhenQueueFull(t *testing.T) {
	strat := &fakeStrategy{}
	results := make(chan Result, 16)
	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, nil, results, zerolog.Nop())
	// Don't start the goroutine: nothing drains r.marketData, so the queue
	// fills up and every Feed past its capacity must drop the oldest tick.
	r.running.Store(true)

	for i := 0; i < marketDataQueueSize+5; i++ {
		r.Feed(domain.MarketData{Symbol: "INFY"})
	}

	assert.Equal(t, int64(5), r.DroppedTicks())
}

func TestRunner_PanicInOnMarketDataSurvivesAsErrorResult(t *testing.T) {
	strat := &fakeStrategy{panicOnTick: true}
	results := make(chan Result, 16)
	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, nil, results, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	drainUntil(t, results, ResultStatus, time.Second)

	r.Feed(domain.MarketData{Symbol: "INFY"})
	errResult := drainUntil(t, results, ResultError, time.Second)
	assert.Contains(t, errResult.Error, "boom")

	assert.True(t, r.IsRunning(), "a panic in a single tick must not kill the runner")
	r.Stop(context.Background())
}

func TestRunner_RiskBlocksOrdersWhenKillSwitchActiveForSubscription(t *testing.T) {
	order := &domain.Order{
		Symbol:      "INFY",
		Signal:      domain.SignalBuy,
		Quantity:    10,
		MarketPrice: decimal.NewFromInt(100),
		StopLoss:    decimal.NewFromInt(95),
	}
	strat := &fakeStrategy{nextOrder: order}
	results := make(chan Result, 16)

	ks := killswitch.New(nil)
	ks.ActivateStrategy("sub-1", "operator paused this subscription")

	r := New("sub-1", "user-1", strat, newTestContext(), domain.RiskLimits{}, ks, results, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	drainUntil(t, results, ResultStatus, time.Second)

	r.Feed(domain.MarketData{Symbol: "INFY", LTP: decimal.NewFromInt(100)})

	blocked := drainUntil(t, results, ResultRiskBlocked, time.Second)
	assert.Contains(t, blocked.Reason, "kill switch")

	r.Stop(context.Background())
}
