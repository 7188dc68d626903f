// Package monitor tracks submitted jobs to a terminal state.
//
// Two channels feed one state machine per job: a poll loop driven by a timer,
// and push deliveries from the local receiver. Both go through Reduce, a pure
// transition function in which terminal states absorb every later event, so
// the first terminal signal wins and callbacks fire at most once. The monitor
// never returns errors for job outcomes; failures arrive through OnError.
package monitor
