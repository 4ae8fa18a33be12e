// Package strategy defines the contract every trading strategy implements
// and a static registry used to dispatch by name (spec.md §9 resolves the
// dynamic-loading open question in favor of a static table: Go has no safe
// analogue to Python's importlib for untrusted or operator-supplied code).
package strategy

import (
	"github.com/aristath/sentinel/internal/domain"
)

// ConfigurableParam describes one user-tunable strategy parameter: its
// name (the key ApplyConfig expects), a human-readable label, its type
// ("int" or "float"), default/min/max bounds, and a short description.
// Ported from sma_rsi_crossover.py's ConfigurableParam dataclass.
type ConfigurableParam struct {
	Name         string
	DisplayName  string
	ParamType    string // "int" or "float"
	DefaultValue interface{}
	MinValue     interface{}
	MaxValue     interface{}
	Description  string
}

// Strategy is the lifecycle contract a strategy implements. A runner calls
// these methods from a single goroutine, so implementations don't need to
// be internally thread-safe.
type Strategy interface {
	// OnStart is called once before the first OnMarketData call.
	OnStart(ctx domain.StrategyContext)
	// OnStop is called once, after the runner has decided to stop; no
	// further calls follow.
	OnStop(ctx domain.StrategyContext)
	// OnPause is called when the strategy is paused; OnMarketData is not
	// called again until OnResume.
	OnPause(ctx domain.StrategyContext)
	// OnResume is called when a paused strategy resumes.
	OnResume(ctx domain.StrategyContext)
	// OnMarketData is called for every tick/candle the strategy is
	// subscribed to. Returning a nil *domain.Order means no action.
	OnMarketData(ctx domain.StrategyContext, data domain.MarketData) *domain.Order
	// OnOrderFilled is called after an order the strategy generated has
	// been filled (live or simulated), so it can update internal state
	// (e.g. crossover history) in sync with what actually executed.
	// Ported from the original's BaseStrategy contract — present in
	// original_source/backend/strategies/base.py but dropped from the
	// distilled spec.md lifecycle list.
	OnOrderFilled(order domain.Order, fillPrice domain.MarketData, fillQuantity int64)
	// GetState returns a serializable snapshot of strategy-internal state
	// (price history, previous moving averages, etc.) for persistence
	// across restarts.
	GetState() map[string]interface{}
	// SetState restores a snapshot previously returned by GetState.
	SetState(state map[string]interface{})
	// GetConfigurableParams returns the set of parameters an operator can
	// tune for this strategy instance, with their types and bounds.
	// Ported from sma_rsi_crossover.py's get_configurable_params classmethod
	// — present in spec.md §4.1's strategy contract but dropped by the
	// distillation's restatement of it.
	GetConfigurableParams() []ConfigurableParam
	// ApplyConfig updates the strategy's parameters from config, looking up
	// only the keys it recognizes and leaving everything else untouched. Ported from sma_rsi_crossover.py's
	// apply_config.
	ApplyConfig(config map[string]interface{})
}

// Factory constructs a new Strategy instance with the given configuration.
type Factory func(config map[string]interface{}) Strategy

// Registry is the static name -> Factory dispatch table.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a Registry pre-populated with the two built-in
// reference strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("sma_rsi_crossover", NewSMARSICrossover)
	r.Register("ma_crossover", NewMovingAverageCrossover)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Create instantiates the strategy registered under name, or (nil, false)
// if no such strategy is registered.
func (r *Registry) Create(name string, config map[string]interface{}) (Strategy, bool) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return factory(config), true
}

// Names lists every registered strategy name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
