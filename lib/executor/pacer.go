package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// ArrivalPacer is a leaky-bucket token source for the arrival-rate
// executor: a rate-driving loop periodically calls UpdateDue to release
// newly scheduled tokens (bounded by backlog), and workers call ClaimNext
// to consume one.
type ArrivalPacer struct {
	scheduledTotal atomic.Uint64
	claimedTotal   atomic.Uint64
	droppedTotal   atomic.Uint64

	activeVUs       atomic.Uint64
	preAllocatedVUs uint64
	maxVUs          uint64

	done atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewArrivalPacer returns a pacer that starts with preAllocatedVUs active
// and never raises the active count above maxVUs.
func NewArrivalPacer(preAllocatedVUs, maxVUs uint64) *ArrivalPacer {
	p := &ArrivalPacer{preAllocatedVUs: preAllocatedVUs, maxVUs: maxVUs}
	p.cond = sync.NewCond(&p.mu)
	p.activeVUs.Store(preAllocatedVUs)
	return p
}

// MarkDone signals that no further tokens will be scheduled and wakes
// every waiter so they can observe it.
func (p *ArrivalPacer) MarkDone() {
	p.done.Store(true)
	p.wake()
}

// IsDone reports whether MarkDone has been called.
func (p *ArrivalPacer) IsDone() bool {
	return p.done.Load()
}

// DroppedTotal returns the cumulative count of tokens dropped to backlog
// pressure.
func (p *ArrivalPacer) DroppedTotal() uint64 {
	return p.droppedTotal.Load()
}

// ActiveVUs returns the current adaptive active-worker figure.
func (p *ArrivalPacer) ActiveVUs() uint64 {
	return p.activeVUs.Load()
}

// MaxVUs returns the configured ceiling on active workers.
func (p *ArrivalPacer) MaxVUs() uint64 {
	return p.maxVUs
}

// UpdateDue adds addDue new tokens to the schedule, subject to the
// backlog≤max(maxVUs,1) load-shedding cap, recomputes the adaptive
// active-worker figure, and wakes any worker waiting on a token or on a
// recheck of its activation.
func (p *ArrivalPacer) UpdateDue(addDue uint64) {
	if addDue == 0 {
		p.updateActiveVUs()
		return
	}

	claimed := p.claimedTotal.Load()
	scheduled := p.scheduledTotal.Load()
	backlog := saturatingSub(scheduled, claimed)

	maxBacklog := p.maxVUs
	if maxBacklog < 1 {
		maxBacklog = 1
	}
	allowed := saturatingSub(maxBacklog, backlog)
	toAdd := addDue
	if toAdd > allowed {
		toAdd = allowed
	}
	dropped := addDue - toAdd

	if toAdd != 0 {
		p.scheduledTotal.Add(toAdd)
	}
	if dropped != 0 {
		p.droppedTotal.Add(dropped)
	}

	p.updateActiveVUs()
	p.wake()
}

// updateActiveVUs recomputes the adaptive active-worker figure: stay at
// preAllocatedVUs when the backlog is empty, otherwise raise to cover the
// backlog (plus one), clamped to [1, maxVUs].
func (p *ArrivalPacer) updateActiveVUs() {
	claimed := p.claimedTotal.Load()
	scheduled := p.scheduledTotal.Load()
	backlog := saturatingSub(scheduled, claimed)

	var desired uint64
	if backlog == 0 {
		desired = p.preAllocatedVUs
	} else {
		desired = p.preAllocatedVUs
		if want := backlog + 1; want > desired {
			desired = want
		}
	}
	desired = clampUint64(desired, 1, p.maxVUs)
	p.activeVUs.Store(desired)
}

// ClaimNext blocks until a token is available, returning true once claimed.
// It returns false only once the pacer is done and no backlog remains: no
// further tokens will ever appear. ctx cancellation also unblocks a wait,
// returning false.
func (p *ArrivalPacer) ClaimNext(ctx context.Context) bool {
	for {
		if p.IsDone() {
			if p.claimedTotal.Load() >= p.scheduledTotal.Load() {
				return false
			}
		}

		claimed := p.claimedTotal.Load()
		scheduled := p.scheduledTotal.Load()
		if claimed < scheduled {
			if p.claimedTotal.CompareAndSwap(claimed, claimed+1) {
				return true
			}
			continue
		}

		if !p.waitForUpdateOrDone(ctx) {
			return false
		}
	}
}

// WaitForUpdate blocks until the next UpdateDue or MarkDone call, or until
// ctx is done. It returns false only on ctx cancellation.
func (p *ArrivalPacer) WaitForUpdate(ctx context.Context) bool {
	return p.waitForUpdateOrDone(ctx)
}

func (p *ArrivalPacer) waitForUpdateOrDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cond.Wait()
	return ctx.Err() == nil
}

func (p *ArrivalPacer) wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cond.Broadcast()
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func clampUint64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
