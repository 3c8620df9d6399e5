// Package projector implements the replay/tail loop that turns a base's
// external log into its local materialized state: parse each event,
// apply it to the document store while advancing the durable checkpoint,
// fan out to matching subscribers, then wake SequenceBarrier waiters, all
// atomically from a reader's perspective.
package projector
