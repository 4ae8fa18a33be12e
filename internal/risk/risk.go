// Package risk implements the platform's pre-trade risk checks: a pure,
// synchronous evaluator that, given a candidate order and the strategy's
// current context, returns an allow/deny decision and a reason. No I/O,
// no database lookups — everything the checks need is already present on
// the context, matching the strategy runner's requirement that a risk
// check never blocks.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/sentinel/internal/domain"
)

// Decision is the outcome of evaluating an order against the risk limits.
// LimitType identifies which check denied the order ("kill_switch",
// "daily_loss", "max_drawdown", "max_positions", "max_order_value",
// "daily_trades", "stop_loss_required", "sell_has_position"), matching
// risk_manager.py's RiskCheckResult.limit_type — the runner uses it to
// decide whether a denial should also trip the kill switch.
type Decision struct {
	Allowed   bool
	Reason    string
	LimitType string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(limitType, format string, args ...interface{}) Decision {
	return Decision{Allowed: false, LimitType: limitType, Reason: fmt.Sprintf(format, args...)}
}

// checkFunc is one ordered risk check. It returns a non-allowed Decision
// to deny the order, or allow() to let evaluation continue to the next
// check. Grounded on risk_manager.py's check_order: an ordered list of
// private methods, the first denial short-circuits the rest.
type checkFunc func(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision

// Evaluate runs every check in order and returns the first denial, or an
// allow Decision if every check passes. todayTradeCount is the caller's
// (the runner's) count of trades placed so far today; killSwitchActive is
// the caller's kill-switch reading for this subscription (the runner asks
// killswitch.Store.IsStrategyActive for every order) — risk.Evaluate stays
// pure and I/O-free, so the state is read and passed in rather than
// looked up here. Order matches risk_manager.py's
// check_order exactly.
func Evaluate(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	checks := []checkFunc{
		checkKillSwitch,
		checkDailyLossLimit,
		checkMaxDrawdown,
		checkMaxPositions,
		checkMaxOrderValue,
		checkDailyTradeLimit,
		checkStopLossRequired,
		checkSellHasPosition,
	}

	for _, check := range checks {
		if d := check(order, ctx, todayTradeCount, killSwitchActive); !d.Allowed {
			return d
		}
	}
	return allow()
}

// checkKillSwitch denies every order once the caller's kill-switch
// snapshot reports this subscription (or its user, or globally) stopped.
func checkKillSwitch(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if killSwitchActive {
		return deny("kill_switch", "kill switch is active for this subscription")
	}
	return allow()
}

// checkMaxDrawdown denies any new order once the account's drawdown from
// capital has breached the configured percentage.
// Ported from risk_manager.py: (total_pnl / capital) * 100 <= -max_drawdown_percent
func checkMaxDrawdown(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if ctx.Capital.IsZero() {
		return allow()
	}
	drawdownPercent := ctx.TotalPnL.Div(ctx.Capital).Mul(decimal.NewFromInt(100))
	if drawdownPercent.LessThanOrEqual(ctx.Limits.MaxDrawdownPercent.Neg()) {
		return deny("max_drawdown", "max drawdown of %s%% breached (current: %s%%)", ctx.Limits.MaxDrawdownPercent.String(), drawdownPercent.String())
	}
	return allow()
}

// checkDailyLossLimit denies any new order once realized+unrealized loss
// for the day has breached the configured absolute limit.
func checkDailyLossLimit(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if ctx.Limits.DailyLossLimit.IsZero() {
		return allow()
	}
	if ctx.TotalPnL.Neg().GreaterThanOrEqual(ctx.Limits.DailyLossLimit) {
		return deny("daily_loss", "daily loss limit of %s breached (current loss: %s)", ctx.Limits.DailyLossLimit.String(), ctx.TotalPnL.Neg().String())
	}
	return allow()
}

// checkMaxPositions denies a new BUY that would open a position beyond the
// configured maximum count of concurrently-held symbols.
func checkMaxPositions(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if order.Signal != domain.SignalBuy {
		return allow()
	}
	if ctx.Limits.MaxPositions <= 0 {
		return allow()
	}
	if _, exists := ctx.PositionFor(order.Symbol); exists {
		return allow() // adding to an existing position doesn't open a new slot
	}
	if len(ctx.Positions) >= ctx.Limits.MaxPositions {
		return deny("max_positions", "max open positions (%d) reached", ctx.Limits.MaxPositions)
	}
	return allow()
}

// checkMaxOrderValue denies an order whose notional value exceeds the
// configured percentage of capital.
// Ported from risk_manager.py: qty * price > capital * (max_order_value_percent / 100)
func checkMaxOrderValue(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if ctx.Limits.MaxOrderValuePercent.IsZero() {
		return allow()
	}
	price := order.MarketPrice
	if price.IsZero() {
		price = order.Price
	}
	notional := price.Mul(decimal.NewFromInt(order.Quantity))
	limit := ctx.Capital.Mul(ctx.Limits.MaxOrderValuePercent).Div(decimal.NewFromInt(100))
	if notional.GreaterThan(limit) {
		return deny("max_order_value", "order value %s exceeds %s%% of capital (%s)", notional.String(), ctx.Limits.MaxOrderValuePercent.String(), limit.String())
	}
	return allow()
}

// checkDailyTradeLimit denies any order once today's trade count has
// reached the configured ceiling. A zero limit means unset (no check).
// Ported from risk_manager.py's _check_daily_trade_limit.
func checkDailyTradeLimit(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if ctx.Limits.MaxDailyTrades <= 0 {
		return allow()
	}
	if todayTradeCount >= ctx.Limits.MaxDailyTrades {
		return deny("daily_trades", "daily trade limit (%d) reached", ctx.Limits.MaxDailyTrades)
	}
	return allow()
}

// isEntrySignal reports whether signal opens a new position (as opposed
// to closing one): BUY opens or adds to a long, EXIT_SHORT covers a short
// back to flat-or-long and so is held to the same stop-loss discipline.
func isEntrySignal(signal domain.Signal) bool {
	return signal == domain.SignalBuy || signal == domain.SignalExitShort
}

// checkStopLossRequired denies any entry order (BUY/EXIT_SHORT) that
// carries no stop-loss price. Ported from risk_manager.py's
// _check_stop_loss_required, widened from BUY-only to BUY/EXIT_SHORT per
// the order invariant in §3 of the data model.
func checkStopLossRequired(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if !isEntrySignal(order.Signal) {
		return allow()
	}
	if order.StopLoss.IsZero() {
		return deny("stop_loss_required", "stop loss is required for all entry orders")
	}
	return allow()
}

// checkSellHasPosition denies a SELL/EXIT_LONG for a symbol the strategy
// doesn't hold, or for a quantity larger than the held quantity.
func checkSellHasPosition(order domain.Order, ctx domain.StrategyContext, todayTradeCount int, killSwitchActive bool) Decision {
	if order.Signal != domain.SignalSell && order.Signal != domain.SignalExitLong {
		return allow()
	}
	pos, exists := ctx.PositionFor(order.Symbol)
	if !exists {
		return deny("sell_has_position", "no open position in %s to sell", order.Symbol)
	}
	if order.Quantity > pos.Quantity {
		return deny("sell_has_position", "sell quantity %d exceeds held quantity %d for %s", order.Quantity, pos.Quantity, order.Symbol)
	}
	return allow()
}

// PositionSize computes the number of shares to buy so that a stop-loss
// hit at stopPrice loses no more than riskPercent of capital.
// Ported from risk_manager.py: int(capital * (risk_percent/100) / abs(entry - stop)), 0 if entry == stop.
func PositionSize(capital decimal.Decimal, riskPercent decimal.Decimal, entryPrice, stopPrice decimal.Decimal) int64 {
	diff := entryPrice.Sub(stopPrice).Abs()
	if diff.IsZero() {
		return 0
	}
	riskAmount := capital.Mul(riskPercent).Div(decimal.NewFromInt(100))
	size := riskAmount.Div(diff)
	return size.IntPart()
}

// StopLossHit reports whether the current price has crossed the stop-loss
// threshold for a long position entered at avgPrice, slPercent below entry.
// Ported from risk_manager.py check_stop_loss_hit (long side):
// current_price <= avg_price * (1 - sl_percent/100)
func StopLossHit(avgPrice, currentPrice, slPercent decimal.Decimal) bool {
	threshold := avgPrice.Mul(decimal.NewFromInt(1).Sub(slPercent.Div(decimal.NewFromInt(100))))
	return currentPrice.LessThanOrEqual(threshold)
}
