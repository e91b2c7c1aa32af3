package state

import (
	"github.com/agentmesh/a2a-core/pkg/a2a"
)

/*
Folder is the pure reducer that turns a stream of heterogeneous events into
the canonical task record. The central pipeline processor applies it before
every save; the client applies the same rules to mirror server state during
streaming. For the same (prior, event) pair the output is identical, and the
prior task is never mutated.
*/
type Folder struct{}

/*
Fold applies one event to the prior task state and returns the resulting
task. Message events do not modify the task: the prior is returned as-is
(nil if none). All other event kinds return a fresh copy.
*/
func (Folder) Fold(prior *a2a.Task, ev a2a.Event) *a2a.Task {
	switch v := ev.(type) {
	case *a2a.Task:
		return foldSnapshot(prior, v)
	case *a2a.TaskStatusUpdateEvent:
		return foldStatusUpdate(prior, v)
	case *a2a.TaskArtifactUpdateEvent:
		return foldArtifactUpdate(prior, v)
	}
	return prior
}

func foldSnapshot(prior, snap *a2a.Task) *a2a.Task {
	next := snap.Clone()

	if prior == nil {
		return next
	}

	// The snapshot wins except where it is silent: a snapshot without
	// history keeps the history already accumulated, and metadata merges
	// with the snapshot overriding duplicate keys.
	if len(next.History) == 0 && len(prior.History) > 0 {
		next.History = append([]a2a.Message(nil), prior.History...)
	}

	next.Metadata = mergeMetadata(prior.Metadata, snap.Metadata)

	return next
}

func foldStatusUpdate(prior *a2a.Task, ev *a2a.TaskStatusUpdateEvent) *a2a.Task {
	var next *a2a.Task
	if prior == nil {
		// Status update for a task the store has never seen: adopt a
		// submitted-state skeleton carrying the received identifiers.
		next = &a2a.Task{
			ID:        ev.TaskID,
			ContextID: ev.ContextID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateSubmitted},
		}
	} else {
		next = prior.Clone()
	}

	// Demote the superseded status message into history before replacing.
	if next.Status.Message != nil {
		next.History = append(next.History, *next.Status.Message)
	}

	next.Status = ev.Status
	next.Metadata = mergeMetadata(next.Metadata, ev.Metadata)

	return next
}

func foldArtifactUpdate(prior *a2a.Task, ev *a2a.TaskArtifactUpdateEvent) *a2a.Task {
	var next *a2a.Task
	if prior == nil {
		next = &a2a.Task{
			ID:        ev.TaskID,
			ContextID: ev.ContextID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateSubmitted},
		}
	} else {
		next = prior.Clone()
	}

	incoming := ev.Artifact
	existing := next.Artifact(incoming.ArtifactID)

	switch {
	case existing == nil:
		next.Artifacts = append(next.Artifacts, incoming)
	case ev.Append:
		existing.Parts = append(existing.Parts, incoming.Parts...)
	default:
		*existing = incoming
	}

	next.Metadata = mergeMetadata(next.Metadata, ev.Metadata)

	return next
}

// mergeMetadata overlays b onto a without touching either input.
func mergeMetadata(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
