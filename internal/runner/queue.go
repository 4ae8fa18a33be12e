// Package runner implements the strategy runner: one isolated execution
// unit per running strategy, communicating with its supervisor only
// through message-passing channels — no shared memory, no pointers across
// the boundary. Ported from
// original_source/backend/execution_engine/strategy_runner.py, which uses
// a multiprocessing.Process and three Queues; this port uses a goroutine
// and three channels instead (see DESIGN.md's isolation-unit note).
package runner

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/domain"
)

// CommandType is the kind of control message sent to a runner.
type CommandType string

const (
	CommandStart  CommandType = "START"
	CommandStop   CommandType = "STOP"
	CommandPause  CommandType = "PAUSE"
	CommandResume CommandType = "RESUME"
)

// Command is a control message sent from the supervisor to a runner.
type Command struct {
	Type CommandType
}

// ResultType is the kind of message a runner sends back to its supervisor.
type ResultType string

const (
	ResultOrder       ResultType = "ORDER"
	ResultRiskBlocked ResultType = "RISK_BLOCKED"
	ResultKillSwitch  ResultType = "KILL_SWITCH_TRIGGER"
	ResultError       ResultType = "ERROR"
	ResultStatus      ResultType = "STATUS"
)

// Result is a message sent from a runner back to its supervisor.
type Result struct {
	Type           ResultType
	SubscriptionID string
	Order          *domain.Order
	Reason         string
	Error          string
	State          map[string]interface{}
}

// Encode serializes a value to msgpack. The runner's channels carry
// Command, domain.MarketData and Result values directly; nothing in this
// module passes them through Encode or Decode.
func Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserializes a value encoded by Encode.
func Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
