/*
Package events provides an in-memory event broker for Drover's
pub/sub messaging.

The broker broadcasts scheduler lifecycle events to interested
subscribers: task transitions, node membership changes, quota
reclamations and fairness interventions. Publishing is non-blocking
with buffered channels; a slow subscriber drops events rather than
stalling the scheduler.

# Event Types

Task events:
  - task.submitted, task.ready, task.running
  - task.checkpointed, task.completed, task.failed, task.cancelled
  - task.preempted (metadata carries the trigger)
  - task.recovered (metadata carries the cause and checkpoint)

Node events:
  - node.joined, node.left, node.degraded, node.down

Policy events:
  - quota.reclaimed
  - fairness.soft_intervention (only when the policy exposes it)
  - fairness.hard_intervention

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s task=%s tenant=%s\n",
				event.Type, event.TaskID, event.TenantID)
		}
	}()

Delivery is at-most-once and unordered across subscribers. Consumers
needing durable history should read scheduler state, not the event
stream.
*/
package events
