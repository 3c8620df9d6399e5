// Package registry implements the SubscriptionRegistry: a set of
// (predicate, callback) subscriptions, each under its own id, with matching
// and emission driven synchronously by the Projector's per-event notify
// step. Canonical-predicate dedup is done by Base.Subscribe, not here.
package registry
