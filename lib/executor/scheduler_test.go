package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/nogcio/wrkr-go/metrics"
)

func TestRunScenariosConstantVUsByIterations(t *testing.T) {
	t.Parallel()

	// E1: vus=2, iterations=10 — exactly 10 entry invocations across the run,
	// regardless of how the 2 workers interleave.
	reg := metrics.NewRegistry()
	var calls atomic.Uint64

	scenarios := []ScenarioConfig{{
		Name:       "default",
		Exec:       "default",
		Executor:   ScenarioExecutor{Kind: KindConstantVUs, VUs: 2},
		Iterations: 10,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 10, calls.Load())
}

func TestRunScenariosFirstWorkerErrorWinsAndAbortsOthers(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	boom := errors.New("boom")

	scenarios := []ScenarioConfig{{
		Name:     "default",
		Exec:     "default",
		Executor: ScenarioExecutor{Kind: KindConstantVUs, VUs: 4},
		// No iteration or duration cap: workers loop until an error or ctx
		// cancellation, so the first failing worker's error must be the one
		// that stops the whole run.
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Uint64
	err := RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
		n := calls.Add(1)
		if n == 1 {
			return boom
		}
		return nil
	}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRunScenariosRampingVUsRespectsTargetOverTime(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	var calls atomic.Uint64

	scenarios := []ScenarioConfig{{
		Name: "ramp",
		Exec: "ramp",
		Executor: ScenarioExecutor{
			Kind:     KindRampingVUs,
			StartVUs: 0,
			Stages:   []Stage{{Duration: 100 * time.Millisecond, Target: 3}},
		},
		Duration: 100 * time.Millisecond,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Greater(t, calls.Load(), uint64(0))
}

func TestRunScenariosRampingArrivalRateDrivesIterationsByRate(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	var calls atomic.Uint64

	scenarios := []ScenarioConfig{{
		Name: "arrival",
		Exec: "arrival",
		Executor: ScenarioExecutor{
			Kind:            KindRampingArrivalRate,
			StartRate:       20,
			TimeUnit:        time.Second,
			PreAllocatedVUs: null.IntFrom(2),
			MaxVUs:          5,
			RateStages:      []Stage{{Duration: 200 * time.Millisecond, Target: 20}},
		},
		Duration: 200 * time.Millisecond,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Greater(t, calls.Load(), uint64(0))
}

func TestRunScenariosContextCancellationStopsAllWorkers(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	scenarios := []ScenarioConfig{{
		Name:     "default",
		Exec:     "default",
		Executor: ScenarioExecutor{Kind: KindConstantVUs, VUs: 2},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		done <- RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
			return nil
		}, nil)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunScenarios did not return after context cancellation")
	}
}

func TestRunScenariosProgressCallbackFiresAtLeastOnce(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	scenarios := []ScenarioConfig{{
		Name:       "default",
		Exec:       "default",
		Executor:   ScenarioExecutor{Kind: KindConstantVUs, VUs: 1},
		Duration:   1200 * time.Millisecond,
		Iterations: 0,
	}}

	var ticks atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := RunScenarios(ctx, reg, scenarios, func(context.Context, VuContext) error {
		time.Sleep(time.Millisecond)
		return nil
	}, func(ProgressUpdate) {
		ticks.Add(1)
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ticks.Load(), uint64(1))
}
