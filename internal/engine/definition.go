package engine

import "fmt"

// Strategy selects how a worker iterates input 0.
type Strategy int

const (
	// Sequential processes photos one at a time, in input order.
	Sequential Strategy = iota
	// Parallel processes photos concurrently and restores input order at the end.
	Parallel
)

func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Definition describes an operator type.
type Definition struct {
	Type     string
	Name     string // default display name
	Inputs   []string
	Outputs  []string
	Strategy Strategy
	// AllowEmpty lets a run over an empty input 0 succeed with empty outputs
	// instead of failing.
	AllowEmpty bool
}
