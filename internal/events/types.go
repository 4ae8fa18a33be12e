package events

// EventType identifies the kind of event flowing through the bus.
type EventType string

const (
	GlobalStop     EventType = "killswitch.global_stop"
	GlobalResume   EventType = "killswitch.global_resume"
	UserStop       EventType = "killswitch.user_stop"
	UserResume     EventType = "killswitch.user_resume"
	StrategyStop   EventType = "killswitch.strategy_stop"
	StrategyResume EventType = "killswitch.strategy_resume"

	OrderGenerated EventType = "order.generated"
	OrderSubmitted EventType = "order.submitted"
	OrderPlaced    EventType = "order.placed"
	OrderFailed    EventType = "order.failed"
	OrderDryRun    EventType = "order.dry_run"
	RiskBlocked    EventType = "order.risk_blocked"

	RunnerStarted EventType = "runner.started"
	RunnerStopped EventType = "runner.stopped"
	RunnerCrashed EventType = "runner.crashed"
	RunnerFailed  EventType = "runner.failed"
)
