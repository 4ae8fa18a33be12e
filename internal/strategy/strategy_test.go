package strategy

import (
	"testing"

	"github.com/aristath/sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopStrategy struct{}

func (noopStrategy) OnStart(domain.StrategyContext)  {}
func (noopStrategy) OnStop(domain.StrategyContext)   {}
func (noopStrategy) OnPause(domain.StrategyContext)  {}
func (noopStrategy) OnResume(domain.StrategyContext) {}
func (noopStrategy) OnMarketData(domain.StrategyContext, domain.MarketData) *domain.Order {
	return nil
}
func (noopStrategy) OnOrderFilled(domain.Order, domain.MarketData, int64) {}
func (noopStrategy) GetState() map[string]interface{}            { return nil }
func (noopStrategy) SetState(map[string]interface{})              {}
func (noopStrategy) GetConfigurableParams() []ConfigurableParam   { return nil }
func (noopStrategy) ApplyConfig(map[string]interface{})           {}

func newNoop(map[string]interface{}) Strategy { return noopStrategy{} }

func TestNewRegistry_PrePopulatesBuiltinStrategies(t *testing.T) {
	r := NewRegistry()
	assert.Contains(t, r.Names(), "sma_rsi_crossover")
	assert.Contains(t, r.Names(), "ma_crossover")
}

func TestRegistry_Register_MakesStrategyConstructible(t *testing.T) {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("noop", newNoop)

	s, ok := r.Create("noop", nil)
	require.True(t, ok)
	assert.IsType(t, noopStrategy{}, s)
}

func TestRegistry_Register_OverwritesExistingName(t *testing.T) {
	r := &Registry{factories: make(map[string]Factory)}
	calls := 0
	r.Register("noop", func(map[string]interface{}) Strategy { calls++; return noopStrategy{} })
	r.Register("noop", newNoop)

	_, ok := r.Create("noop", nil)
	require.True(t, ok)
	assert.Equal(t, 0, calls)
}

func TestRegistry_Create_UnknownNameReturnsFalse(t *testing.T) {
	r := &Registry{factories: make(map[string]Factory)}
	_, ok := r.Create("nonexistent", nil)
	assert.False(t, ok)
}
