package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusPending}, Predecessors(StatusRunning))
	assert.ElementsMatch(t, []Status{StatusPending, StatusRunning}, Predecessors(StatusFailed))
	assert.ElementsMatch(t, []Status{StatusRunning}, Predecessors(StatusCompleted))
	assert.Empty(t, Predecessors(StatusPending))
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(PriorityCritical))
	assert.Equal(t, SeverityMedium, SeverityFor(""))
}
