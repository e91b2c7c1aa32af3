package state

import (
	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
ValidateTransition checks whether a task may move from one state to another.
Interrupted states (input-required, auth-required) resume into working; final
states admit nothing.
*/
func ValidateTransition(from, to a2a.TaskState) error {
	if from == to {
		return nil
	}

	switch from {
	case a2a.TaskStateSubmitted:
		// submitted may move anywhere, including straight to a terminal.
		return nil
	case a2a.TaskStateWorking:
		return nil
	case a2a.TaskStateInputReq, a2a.TaskStateAuthReq:
		switch to {
		case a2a.TaskStateWorking, a2a.TaskStateCompleted, a2a.TaskStateCanceled,
			a2a.TaskStateFailed, a2a.TaskStateRejected:
			return nil
		}
		return errors.ErrInvalidParams.WithMessagef("invalid state transition from %s to %s", from, to)
	}

	if from.IsFinal() {
		return errors.ErrInvalidParams.WithMessagef("cannot transition from final state %s", from)
	}

	return nil
}
