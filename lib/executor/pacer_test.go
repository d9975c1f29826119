package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestArrivalPacerUpdateDueGrowsScheduled(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 10)
	p.UpdateDue(5)
	assert.EqualValues(t, 5, p.scheduledTotal.Load())
	assert.EqualValues(t, 0, p.DroppedTotal())
}

func TestArrivalPacerDropsBeyondBacklogCap(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 2)
	p.UpdateDue(10) // max_backlog = max(maxVUs,1) = 2, so 8 should drop
	assert.EqualValues(t, 8, p.DroppedTotal())
}

func TestArrivalPacerActiveVUsRampsWithBacklog(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 5)
	assert.EqualValues(t, 1, p.ActiveVUs())

	p.UpdateDue(3)
	assert.EqualValues(t, 4, p.ActiveVUs()) // backlog=3, desired=max(1,4)=4

	ctx := context.Background()
	require.True(t, p.ClaimNext(ctx))
	require.True(t, p.ClaimNext(ctx))
	require.True(t, p.ClaimNext(ctx))

	p.UpdateDue(0) // re-evaluate with backlog now 0
	assert.EqualValues(t, 1, p.ActiveVUs())
}

func TestArrivalPacerClaimNextBlocksThenUnblocksOnUpdate(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 2)
	ctx := context.Background()

	claimed := make(chan bool, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		claimed <- p.ClaimNext(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	p.UpdateDue(1)
	wg.Wait()

	select {
	case ok := <-claimed:
		assert.True(t, ok)
	default:
		t.Fatal("expected claim result")
	}
}

func TestArrivalPacerClaimNextReturnsFalseWhenDoneAndDrained(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 2)
	p.UpdateDue(1)
	ctx := context.Background()
	require.True(t, p.ClaimNext(ctx))

	p.MarkDone()
	assert.False(t, p.ClaimNext(ctx))
}

func TestArrivalPacerClaimNextUnblocksOnContextCancel(t *testing.T) {
	t.Parallel()

	p := NewArrivalPacer(1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		done <- p.ClaimNext(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("ClaimNext did not unblock on context cancellation")
	}
}
