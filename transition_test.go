package eventmachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionDefinition_SelectBranch_FirstPassingWins(t *testing.T) {
	target := newStateDefinition("target", 0)
	td := &TransitionDefinition{
		EventName: "EVT",
		Branches: []Branch{
			{Description: "first", Target: nil},
			{Description: "second", Target: target},
		},
	}

	calls := 0
	runCalculators := func([]BehaviorRef) (*ContextManager, error) { return nil, nil }
	runGuards := func(*ContextManager, []BehaviorRef) (bool, error) {
		calls++
		return calls == 2, nil // first branch's guard fails, second passes
	}

	branch, idx, _, err := td.selectBranch(runCalculators, runGuards)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, target, branch.Target)
}

func TestTransitionDefinition_SelectBranch_CalculatorFailureSkipsBranch(t *testing.T) {
	target := newStateDefinition("target", 0)
	td := &TransitionDefinition{
		Branches: []Branch{
			{Description: "bad calc"},
			{Description: "good", Target: target},
		},
	}

	firstCall := true
	runCalculators := func(refs []BehaviorRef) (*ContextManager, error) {
		if firstCall {
			firstCall = false
			return nil, errors.New("calc failed")
		}
		return nil, nil
	}
	runGuards := func(*ContextManager, []BehaviorRef) (bool, error) { return true, nil }

	branch, idx, _, err := td.selectBranch(runCalculators, runGuards)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, target, branch.Target)
}

func TestTransitionDefinition_SelectBranch_GuardErrorPropagates(t *testing.T) {
	td := &TransitionDefinition{
		Branches: []Branch{{}},
	}
	sentinel := errors.New("guard blew up")
	runCalculators := func([]BehaviorRef) (*ContextManager, error) { return nil, nil }
	runGuards := func(*ContextManager, []BehaviorRef) (bool, error) { return false, sentinel }

	branch, idx, _, err := td.selectBranch(runCalculators, runGuards)
	require.Nil(t, branch)
	require.Equal(t, 0, idx)
	require.ErrorIs(t, err, sentinel)
}

func TestTransitionDefinition_SelectBranch_NoneMatch(t *testing.T) {
	td := &TransitionDefinition{
		Branches: []Branch{{}, {}},
	}
	runCalculators := func([]BehaviorRef) (*ContextManager, error) { return nil, nil }
	runGuards := func(*ContextManager, []BehaviorRef) (bool, error) { return false, nil }

	branch, idx, _, err := td.selectBranch(runCalculators, runGuards)
	require.NoError(t, err)
	require.Nil(t, branch)
	require.Equal(t, -1, idx)
}
