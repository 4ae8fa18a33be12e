package engine

import (
	"context"
	"encoding/json"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/domain"
)

// orderEvent is one row written to order_log: a single lifecycle
// transition for an order, not a mutable order record. Ported from
// engine.py's _log_order_event, which inserts a fresh OrderLog row per
// transition instead of updating one in place.
type orderEvent struct {
	SubscriptionID string
	Order          domain.Order
	EventType      string // generated | submitted | placed | failed | dry_run
	Success        *bool
	BrokerOrderID  string
	BrokerName     string
	BrokerRequest  map[string]interface{}
	BrokerResponse map[string]interface{}
	ErrorMessage   string
}

// ledger writes audit rows to the ledger database. A nil *database.DB is
// tolerated (matches engine.py's "if not self.db_session: return" guard) so
// the engine still works in tests or a dry-run-only deployment without a
// database configured.
type ledger struct {
	db *database.DB
}

func (l *ledger) record(ctx context.Context, ev orderEvent) error {
	if l == nil || l.db == nil {
		return nil
	}

	var brokerRequestJSON, brokerResponseJSON []byte
	if ev.BrokerRequest != nil {
		brokerRequestJSON, _ = json.Marshal(ev.BrokerRequest)
	}
	if ev.BrokerResponse != nil {
		brokerResponseJSON, _ = json.Marshal(ev.BrokerResponse)
	}

	var success interface{}
	if ev.Success != nil {
		success = *ev.Success
	}

	var price, stopLoss, marketPrice interface{}
	if !ev.Order.Price.IsZero() {
		price = ev.Order.Price.String()
	}
	if !ev.Order.StopLoss.IsZero() {
		stopLoss = ev.Order.StopLoss.String()
	}
	if !ev.Order.MarketPrice.IsZero() {
		marketPrice = ev.Order.MarketPrice.String()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO order_log (
			subscription_id, order_id, symbol, exchange, order_type, transaction_type,
			quantity, price, trigger_price, event_type, is_dry_run, is_test_order,
			success, broker_order_id, broker_name, broker_request, broker_response,
			error_message, strategy_name, reason, market_price
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SubscriptionID, ev.Order.ID, ev.Order.Symbol, ev.Order.Exchange,
		string(ev.Order.OrderType), string(ev.Order.Signal), ev.Order.Quantity,
		price, stopLoss, ev.EventType, ev.Order.IsDryRun, ev.Order.IsTestOrder,
		success, nullIfEmpty(ev.BrokerOrderID), nullIfEmpty(ev.BrokerName),
		brokerRequestJSON, brokerResponseJSON, nullIfEmpty(ev.ErrorMessage),
		ev.Order.StrategyID, ev.Order.Reason, marketPrice,
	)
	return err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolPtr(b bool) *bool { return &b }

// brokerRequestFor builds the broker request snapshot logged alongside a
// submission attempt, mirroring engine.py's _place_order broker_request
// dict.
func brokerRequestFor(order domain.Order) map[string]interface{} {
	req := map[string]interface{}{
		"symbol":        order.Symbol,
		"exchange":      order.Exchange,
		"signal":        string(order.Signal),
		"quantity":      order.Quantity,
		"order_type":    string(order.OrderType),
		"trigger_price": order.StopLoss.String(),
	}
	if !order.Price.IsZero() {
		req["price"] = order.Price.String()
	}
	return req
}

func brokerResponseFor(result broker.OrderResult) map[string]interface{} {
	return map[string]interface{}{
		"broker_order_id": result.BrokerOrderID,
		"status":          result.Status,
	}
}
