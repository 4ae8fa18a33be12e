// Package engine is the execution engine facade: it owns the broker
// connection and the supervisor, routes strategy-generated orders through
// dry-run short-circuiting and broker submission, and audits every
// lifecycle transition to the ledger database. Ported from
// original_source/backend/execution_engine/engine.py's ExecutionEngine.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/domain"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/killswitch"
	"github.com/aristath/sentinel/internal/strategy"
	"github.com/aristath/sentinel/internal/supervisor"
)

// Engine coordinates strategy supervision, market data distribution, order
// routing, and kill-switch control.
type Engine struct {
	broker       broker.Broker
	supervisor   *supervisor.Supervisor
	killSwitch   *killswitch.Store
	eventManager *events.Manager
	registry     *strategy.Registry
	ledger       *ledger

	log zerolog.Logger
}

// New creates an Engine. ledgerDB may be nil (audit logging becomes a
// no-op, matching engine.py's db_session=None guard); brk may be nil until
// ConnectBroker is called.
func New(brk broker.Broker, ledgerDB *database.DB, registry *strategy.Registry, killSwitch *killswitch.Store, eventManager *events.Manager, log zerolog.Logger) *Engine {
	e := &Engine{
		broker:       brk,
		killSwitch:   killSwitch,
		eventManager: eventManager,
		registry:     registry,
		ledger:       &ledger{db: ledgerDB},
		log:          log.With().Str("component", "engine").Logger(),
	}
	e.supervisor = supervisor.New(killSwitch, eventManager, e.handleOrder, log)
	return e
}

// Start starts the supervisor's background loops.
func (e *Engine) Start(ctx context.Context) {
	e.supervisor.Start(ctx)
}

// Stop stops every running strategy and the supervisor's background loops.
func (e *Engine) Stop(ctx context.Context) {
	e.supervisor.Stop(ctx)
}

// ConnectBroker connects brk and, once connected, makes it the engine's
// active broker for order placement and market data.
func (e *Engine) ConnectBroker(ctx context.Context, brk broker.Broker, creds broker.Credentials) error {
	if err := brk.Connect(ctx, creds); err != nil {
		return fmt.Errorf("engine: connect broker: %w", err)
	}
	e.broker = brk
	return nil
}

// StartStrategy instantiates strategyName from the registry and starts it
// as a supervised runner for subscriptionID.
func (e *Engine) StartStrategy(ctx context.Context, subscriptionID, userID, strategyName string, config map[string]interface{}, stratCtx domain.StrategyContext, limits domain.RiskLimits, symbols []string) error {
	strat, ok := e.registry.Create(strategyName, config)
	if !ok {
		return fmt.Errorf("engine: unknown strategy %q", strategyName)
	}
	return e.supervisor.StartStrategy(ctx, subscriptionID, userID, strat, stratCtx, limits, symbols)
}

// StopStrategy stops a running strategy.
func (e *Engine) StopStrategy(ctx context.Context, subscriptionID string) bool {
	return e.supervisor.StopStrategy(ctx, subscriptionID)
}

// PauseStrategy pauses a running strategy.
func (e *Engine) PauseStrategy(subscriptionID string) bool {
	return e.supervisor.PauseStrategy(subscriptionID)
}

// ResumeStrategy resumes a paused strategy.
func (e *Engine) ResumeStrategy(subscriptionID string) bool {
	return e.supervisor.ResumeStrategy(subscriptionID)
}

// GetStrategyStatus returns one subscription's runner status.
func (e *Engine) GetStrategyStatus(subscriptionID string) (supervisor.Status, bool) {
	return e.supervisor.GetStatus(subscriptionID)
}

// GetAllStrategyStatus returns every supervised subscription's status.
func (e *Engine) GetAllStrategyStatus() []supervisor.Status {
	return e.supervisor.GetAllStatus()
}

// ActivateGlobalKillSwitch stops every running strategy across every user.
func (e *Engine) ActivateGlobalKillSwitch(reason, activatedBy string) {
	e.killSwitch.ActivateGlobal(reason, activatedBy)
}

// DeactivateGlobalKillSwitch resumes trading globally.
func (e *Engine) DeactivateGlobalKillSwitch(deactivatedBy string) {
	e.killSwitch.DeactivateGlobal(deactivatedBy)
}

// ActivateUserKillSwitch stops every running strategy belonging to userID.
func (e *Engine) ActivateUserKillSwitch(userID, reason string) {
	e.killSwitch.ActivateUser(userID, reason)
}

// DeactivateUserKillSwitch resumes trading for userID.
func (e *Engine) DeactivateUserKillSwitch(userID string) {
	e.killSwitch.DeactivateUser(userID)
}

// DistributeMarketData forwards a market data tick to every strategy
// subscribed to its symbol. Intended to be wired as a broker.QuoteHandler
// once converted to domain.MarketData.
func (e *Engine) DistributeMarketData(data domain.MarketData) {
	e.supervisor.DistributeMarketData(data)
}

// StartMarketData subscribes to live quotes for symbols on the active
// broker and distributes each tick to supervised strategies. Ported from
// engine.py's start_market_data.
func (e *Engine) StartMarketData(ctx context.Context, symbols []string) error {
	if e.broker == nil {
		return fmt.Errorf("engine: no broker connected")
	}
	return e.broker.SubscribeMarketData(ctx, symbols, func(q broker.Quote) {
		e.DistributeMarketData(domain.MarketData{
			Symbol: q.Symbol,
			LTP:    q.LTP,
			Open:   q.Open,
			High:   q.High,
			Low:    q.Low,
			Close:  q.Close,
			Volume: q.Volume,
			Bid:    q.Bid,
			Ask:    q.Ask,
		})
	})
}

// handleOrder is the supervisor.OrderHandler wired in New: audit the
// order's generation, short-circuit dry-run orders, and otherwise submit
// to the active broker. Ported from engine.py's _handle_order/_place_order.
func (e *Engine) handleOrder(subscriptionID, userID string, order domain.Order) {
	ctx := context.Background()

	if err := e.ledger.record(ctx, orderEvent{SubscriptionID: subscriptionID, Order: order, EventType: "generated"}); err != nil {
		e.log.Error().Err(err).Msg("failed to log order generation")
	}
	e.eventManager.Emit(events.OrderGenerated, "engine", map[string]interface{}{
		"subscription_id": subscriptionID, "symbol": order.Symbol, "signal": string(order.Signal),
	})

	if order.IsDryRun {
		if err := e.ledger.record(ctx, orderEvent{SubscriptionID: subscriptionID, Order: order, EventType: "dry_run", Success: boolPtr(true)}); err != nil {
			e.log.Error().Err(err).Msg("failed to log dry-run order")
		}
		e.eventManager.Emit(events.OrderDryRun, "engine", map[string]interface{}{"subscription_id": subscriptionID, "symbol": order.Symbol})
		e.log.Info().Str("symbol", order.Symbol).Str("signal", string(order.Signal)).Int64("quantity", order.Quantity).Msg("dry-run order simulated")
		return
	}

	if e.broker == nil || !e.broker.IsConnected() {
		e.log.Warn().Str("subscription_id", subscriptionID).Msg("no connected broker, order not submitted")
		return
	}

	e.placeOrder(ctx, subscriptionID, order)
}

func (e *Engine) placeOrder(ctx context.Context, subscriptionID string, order domain.Order) {
	req := brokerRequestFor(order)
	if err := e.ledger.record(ctx, orderEvent{SubscriptionID: subscriptionID, Order: order, EventType: "submitted"}); err != nil {
		e.log.Error().Err(err).Msg("failed to log order submission")
	}
	e.eventManager.Emit(events.OrderSubmitted, "engine", map[string]interface{}{"subscription_id": subscriptionID, "symbol": order.Symbol})

	result, err := e.broker.PlaceOrder(ctx, order)
	if err != nil {
		if logErr := e.ledger.record(ctx, orderEvent{
			SubscriptionID: subscriptionID, Order: order, EventType: "failed",
			Success: boolPtr(false), ErrorMessage: err.Error(), BrokerName: e.broker.Name(),
		}); logErr != nil {
			e.log.Error().Err(logErr).Msg("failed to log order failure")
		}
		e.eventManager.Emit(events.OrderFailed, "engine", map[string]interface{}{"subscription_id": subscriptionID, "error": err.Error()})
		e.log.Error().Err(err).Str("symbol", order.Symbol).Msg("order placement failed")
		return
	}

	if logErr := e.ledger.record(ctx, orderEvent{
		SubscriptionID: subscriptionID, Order: order, EventType: "placed",
		Success: boolPtr(true), BrokerOrderID: result.BrokerOrderID, BrokerName: e.broker.Name(),
		BrokerRequest: req, BrokerResponse: brokerResponseFor(result),
	}); logErr != nil {
		e.log.Error().Err(logErr).Msg("failed to log order placement")
	}
	e.eventManager.Emit(events.OrderPlaced, "engine", map[string]interface{}{
		"subscription_id": subscriptionID, "symbol": order.Symbol, "broker_order_id": result.BrokerOrderID,
	})
	e.log.Info().Str("subscription_id", subscriptionID).Str("broker_order_id", result.BrokerOrderID).Msg("order placed")
}
