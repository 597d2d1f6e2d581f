package service

import "context"

// Pool bounds the number of inference calls running at once.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with size slots. Sizes below 1 are raised to 1.
func NewPool(size int) *Pool {
	return &Pool{slots: make(chan struct{}, max(size, 1))}
}

// Do runs fn once a slot is free. Waiting honors ctx; fn itself is not
// interrupted once started.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	return fn(ctx)
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// InFlight returns the number of calls currently holding a slot.
func (p *Pool) InFlight() int {
	return len(p.slots)
}
