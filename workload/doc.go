// Package workload implements the durable work queue at the core of
// conductor: prioritized items claimed atomically by agents under a
// time-bounded lease, with linear-backoff retries for transient failures
// and an append-only exception ledger for everything that goes wrong.
//
// The claim protocol is poll-based and non-blocking. ClaimItem hands the
// single most urgent eligible item (priority descending, then oldest
// first) to exactly one claimant, stamping a lease that expires after a
// fixed duration. An agent that crashes mid-task simply lets the lease
// lapse; the item becomes claimable again with no reaper process.
//
// Failure handling distinguishes three classes: business failures (the
// work itself is invalid, never retried), system failures (transient
// environment faults, retried while budget remains), and application
// failures (automation defects, never retried).
package workload
