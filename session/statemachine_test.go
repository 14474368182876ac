package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestMachine() *StateMachine {
	return NewStateMachine(zap.NewNop().Sugar())
}

func TestInitialState(t *testing.T) {
	m := newTestMachine()
	assert.Equal(t, CompilingEnvironment, m.State())
}

func TestCompilingToSendingOnCompleteEnvironment(t *testing.T) {
	m := newTestMachine()

	m.Update(StateInfo{EnvironmentComplete: false})
	assert.Equal(t, CompilingEnvironment, m.State())

	m.Update(StateInfo{EnvironmentComplete: true})
	assert.Equal(t, SendingQueries, m.State())
}

func TestSendingToAllQueriesSent(t *testing.T) {
	m := newTestMachine()
	m.Update(StateInfo{EnvironmentComplete: true})

	m.Update(StateInfo{AllQueriesSent: false})
	assert.Equal(t, SendingQueries, m.State())

	m.Update(StateInfo{AllQueriesSent: true})
	assert.Equal(t, AllQueriesSent, m.State())
}

func TestAllQueriesSentToAllResponsesReceived(t *testing.T) {
	m := newTestMachine()
	m.Update(StateInfo{EnvironmentComplete: true})
	m.Update(StateInfo{AllQueriesSent: true})

	m.Update(StateInfo{AllResponsesReceived: false})
	assert.Equal(t, AllQueriesSent, m.State())

	m.Update(StateInfo{AllResponsesReceived: true})
	assert.Equal(t, AllResponsesReceived, m.State())
}

func TestIdleReentersCompilingOnEnvironmentChange(t *testing.T) {
	m := newTestMachine()
	m.Update(StateInfo{EnvironmentComplete: true})
	m.Update(StateInfo{AllQueriesSent: true})
	m.Update(StateInfo{AllResponsesReceived: true})

	m.Update(StateInfo{EnvironmentChanged: true, QueriesChanged: true})
	assert.Equal(t, CompilingEnvironment, m.State(), "environment change wins over query change")
}

func TestIdleReentersSendingOnQueryChange(t *testing.T) {
	m := newTestMachine()
	m.Update(StateInfo{EnvironmentComplete: true})
	m.Update(StateInfo{AllQueriesSent: true})
	m.Update(StateInfo{AllResponsesReceived: true})

	m.Update(StateInfo{QueriesChanged: true})
	assert.Equal(t, SendingQueries, m.State())
}

func TestOneTransitionPerUpdate(t *testing.T) {
	m := newTestMachine()

	// all conditions true at once still advances only one edge
	info := StateInfo{
		EnvironmentComplete:  true,
		AllQueriesSent:       true,
		AllResponsesReceived: true,
	}
	m.Update(info)
	assert.Equal(t, SendingQueries, m.State())
	m.Update(info)
	assert.Equal(t, AllQueriesSent, m.State())
	m.Update(info)
	assert.Equal(t, AllResponsesReceived, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CompilingEnvironment", CompilingEnvironment.String())
	assert.Equal(t, "AllResponsesReceived", AllResponsesReceived.String())
	assert.Equal(t, "Unknown", State(42).String())
}
