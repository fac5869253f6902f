// Package execution maintains the run ledger: one Execution per attempt
// to run a process version, created atomically with the queue item that
// carries it to an agent. The execution answers "what happened" while
// the item drives "who does it next".
package execution
