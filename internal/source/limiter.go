package source

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps concurrent use of the scraping resource shared by the tick
// loop and the refinement loops.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a limiter admitting n holders. n <= 0 means unlimited.
func NewLimiter(n int) *Limiter {
	l := &Limiter{}
	if n > 0 {
		l.sem = semaphore.NewWeighted(int64(n))
	}
	return l
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.sem == nil {
		return nil
	}
	return l.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	if l == nil || l.sem == nil {
		return
	}
	l.sem.Release(1)
}
