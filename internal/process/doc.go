// Package process wires operators into a graph.
//
// A Process records which output feeds which input, refuses connections that
// would close a cycle, and keeps outputs honest: when an operator goes out of
// date or publishes new results, everything downstream of it is marked out
// of date too. When an operator is played while its inputs are stale, the
// process plays the stale ancestors first, in dependency order.
package process
