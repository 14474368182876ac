package session

import "go.uber.org/zap"

// State of one session's query lifecycle.
type State int

const (
	CompilingEnvironment State = iota
	SendingQueries
	AllQueriesSent
	AllResponsesReceived
)

var stateNames = map[State]string{
	CompilingEnvironment: "CompilingEnvironment",
	SendingQueries:       "SendingQueries",
	AllQueriesSent:       "AllQueriesSent",
	AllResponsesReceived: "AllResponsesReceived",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// StateInfo is the per-tick snapshot the dispatcher feeds the machine.
type StateInfo struct {
	EnvironmentChanged   bool
	EnvironmentComplete  bool
	QueriesChanged       bool
	AllQueriesSent       bool
	AllResponsesReceived bool
}

// StateMachine holds the session state. Transitions are edge-triggered and
// evaluated once per tick.
type StateMachine struct {
	state State
	log   *zap.SugaredLogger
}

func NewStateMachine(log *zap.SugaredLogger) *StateMachine {
	return &StateMachine{state: CompilingEnvironment, log: log}
}

func (m *StateMachine) State() State { return m.state }

// Update advances the machine by at most one transition.
func (m *StateMachine) Update(info StateInfo) {
	oldState := m.state

	switch m.state {
	case CompilingEnvironment:
		if info.EnvironmentComplete {
			m.state = SendingQueries
		}
	case SendingQueries:
		if info.AllQueriesSent {
			m.state = AllQueriesSent
		}
	case AllQueriesSent:
		if info.AllResponsesReceived {
			m.state = AllResponsesReceived
		}
	case AllResponsesReceived:
		if info.EnvironmentChanged {
			m.state = CompilingEnvironment
		} else if info.QueriesChanged {
			m.state = SendingQueries
		}
	}

	if oldState != m.state {
		m.log.Infow("state changed", "from", oldState.String(), "to", m.state.String())
	}
}
