package model

// ActionType tags which variant an Action carries.
type ActionType int

const (
	ActionSubmit ActionType = iota
	ActionCancel
	ActionSetTimer
	ActionLog
)

// Action is the tagged variant a Strategy emits in response to an event.
// The StrategyRuntime collects these in order and hands them to the Engine;
// strategies never call an executor directly.
type Action struct {
	Type ActionType

	// ActionSubmit
	Submit OrderRequest

	// ActionCancel
	CancelID string

	// ActionSetTimer
	TimerName string
	TimerAtNs int64

	// ActionLog
	LogMessage string
}

// SubmitAction wraps an OrderRequest as an Action.
func SubmitAction(req OrderRequest) Action { return Action{Type: ActionSubmit, Submit: req} }

// CancelAction wraps a client order id as a cancel Action.
func CancelAction(cid string) Action { return Action{Type: ActionCancel, CancelID: cid} }

// SetTimerAction schedules a named timer to fire at atNs.
func SetTimerAction(name string, atNs int64) Action {
	return Action{Type: ActionSetTimer, TimerName: name, TimerAtNs: atNs}
}

// LogAction emits a strategy log line as an Action.
func LogAction(msg string) Action { return Action{Type: ActionLog, LogMessage: msg} }
