// Package maintenance runs background upkeep for a live database.
// Today that is periodic snapshotting: writes stay fast and the on-disk
// snapshot trails the live state by at most one interval.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Saver is the database capability the autosaver drives.
type Saver interface {
	// Save writes a snapshot and reports success.
	Save() bool
}

// Autosaver snapshots a Saver on a fixed cadence. Saves are
// rate-limited so manual triggers cannot stampede the disk, and a
// semaphore keeps at most one save in flight.
type Autosaver struct {
	db      Saver
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	cancel context.CancelFunc
	done   chan struct{}

	saves    atomic.Int64
	failures atomic.Int64
}

// NewAutosaver creates an autosaver snapshotting db every interval.
func NewAutosaver(db Saver, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Autosaver{
		db:      db,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		sem:     semaphore.NewWeighted(1),
	}
}

// Start launches the background loop. Calling Start twice panics.
func (a *Autosaver) Start() {
	if a.cancel != nil {
		panic("maintenance: autosaver already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx)
}

func (a *Autosaver) run(ctx context.Context) {
	defer close(a.done)
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		a.saveOnce(ctx)
	}
}

// saveOnce runs one save and reports whether it ran; it returns false
// when the context ends before the semaphore is acquired.
func (a *Autosaver) saveOnce(ctx context.Context) bool {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer a.sem.Release(1)

	if a.db.Save() {
		a.saves.Add(1)
	} else {
		a.failures.Add(1)
	}
	return true
}

// TriggerNow requests an immediate save, still subject to the rate
// limit. It returns false when the limiter refuses or the context ends
// first.
func (a *Autosaver) TriggerNow(ctx context.Context) bool {
	if !a.limiter.Allow() {
		return false
	}
	return a.saveOnce(ctx)
}

// Stop halts the loop and waits for an in-flight save to finish.
// Stopping an unstarted autosaver is a no-op.
func (a *Autosaver) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.cancel = nil
}

// Saves returns the number of successful background saves.
func (a *Autosaver) Saves() int64 { return a.saves.Load() }

// Failures returns the number of failed background saves.
func (a *Autosaver) Failures() int64 { return a.failures.Load() }
