package pipeline

import "context"

// Item is one node of a task chain. Task walks the chain through this
// interface without knowing the concrete node type.
type Item interface {
	// Link attaches next as the successor of this item.
	Link(next Item) error
	Next() Item
	Previous() Item
	// IsActive reports whether the item holds a task context for the
	// current run.
	IsActive() bool
	// Activate lets the item decide whether it takes part in the run.
	// burnerr.ErrNotRunning opts out without failing the task.
	Activate(c *Ctx) error
	Start(ctx context.Context) error
	ClockTick() error
	Stop() error
}

// linker is implemented by items that can record a predecessor.
type linker interface {
	setPrevious(prev Item)
}
