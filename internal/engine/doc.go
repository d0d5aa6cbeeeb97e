// Package engine runs operators: graph nodes that turn collections of photos
// into new collections on a dedicated goroutine.
//
// An Operator owns parameters, input ports bound to upstream outputs, and
// output slots. Each Play starts one Worker, which snapshots the inputs,
// iterates them with the operator's Strategy and ends with exactly one
// terminal signal. The operator adopts the worker's outputs on success and
// keeps its previous outputs on failure.
package engine
