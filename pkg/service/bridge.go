package service

import (
	"context"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
)

/*
Bridge is the queue-to-transport stage. It pumps a ChildQueue into an
unbuffered channel: each send completes only when the downstream adapter
has accepted the previous event, which is the demand accounting that
keeps a slow network from piling events up outside the queue's own
bounded buffer.

The stream ends on the task's final event, on queue close, or when ctx
is canceled (client disconnect); in every case the child detaches and
the MainQueue's reference counting takes over.
*/
func Bridge(ctx context.Context, child *eventqueue.ChildQueue, call *ServerCallContext) <-chan a2a.Event {
	out := make(chan a2a.Event)

	detach := func() { child.Close(false, true) }
	if call != nil {
		call.OnCancel(detach)
	}

	go func() {
		defer close(out)
		defer detach()

		for {
			if ctx.Err() != nil {
				return
			}

			item, status := child.Dequeue(dequeuePoll)

			switch status {
			case eventqueue.DequeueClosed:
				return
			case eventqueue.DequeueTimeout:
				continue
			}

			select {
			case out <- item.Event:
			case <-ctx.Done():
				return
			}

			if a2a.IsFinalEvent(item.Event) {
				return
			}
		}
	}()

	return out
}
