package active

// RedundancyPlanner decides how many annotations an example may collect.
// The selector never offers an example whose annotation count has reached
// its cap.
type RedundancyPlanner interface {
	MaxLabels(exampleIndex int) int
}

// ConstantCap is a RedundancyPlanner applying the same cap to every
// example.
type ConstantCap int

func (c ConstantCap) MaxLabels(int) int { return int(c) }
