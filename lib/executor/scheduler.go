// Package executor implements the scriptable load-generation engine's
// worker scheduling: ramping/constant/arrival-rate executor shapes, the
// shared init barrier and start signal, the arrival-rate driving loop, and
// a 1 Hz progress sampler.
package executor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nogcio/wrkr-go/metrics"
	"golang.org/x/sync/errgroup"
)

// EntryFn is invoked once per granted iteration. It must be safe to call
// concurrently from many workers and must not assume thread identity.
type EntryFn func(ctx context.Context, vu VuContext) error

// ProgressUpdate is one 1 Hz sample handed to a ProgressFn.
type ProgressUpdate struct {
	Tick     uint64
	Elapsed  time.Duration
	Scenario string
	Exec     string
}

// ProgressFn is the observability hook called once per scenario per tick.
// It is not part of the scheduler's termination logic.
type ProgressFn func(ProgressUpdate)

const rateDriverTick = 10 * time.Millisecond

// RunScenarios drives every scenario in scenarios to completion: it builds
// each scenario's executor-specific state, waits for every worker to clear
// the init barrier, stamps the run's start time, then runs every worker's
// executor-specific loop plus, for arrival-rate scenarios, their rate
// driver. It returns the first error raised by any worker or rate driver.
func RunScenarios(ctx context.Context, reg *metrics.Registry, scenarios []ScenarioConfig, entry EntryFn, progress ProgressFn) error {
	vuIds := registerVuMetrics(reg)

	type scenarioRun struct {
		cfg  ScenarioConfig
		work VuWork
	}
	runs := make([]scenarioRun, 0, len(scenarios))

	var totalVUs uint64
	for _, sc := range scenarios {
		work, err := buildWork(sc)
		if err != nil {
			return err
		}
		runs = append(runs, scenarioRun{cfg: sc, work: work})
		totalVUs += sc.Executor.maxVUs()
	}
	if totalVUs == 0 {
		return nil
	}

	var barrierWG sync.WaitGroup
	barrierWG.Add(int(totalVUs))

	startSignal := NewStartSignal()

	g, gctx := errgroup.WithContext(ctx)

	vuID := uint64(1)
	for _, run := range runs {
		run := run
		max := run.cfg.Executor.maxVUs()
		for i := uint64(1); i <= max; i++ {
			vctx := VuContext{
				VUId:        vuID,
				ScenarioVU:  i,
				Scenario:    run.cfg.Name,
				Exec:        run.cfg.Exec,
				Work:        run.work,
				Registry:    reg,
				StartSignal: startSignal,
			}
			vuID++
			g.Go(func() error {
				// Every worker's init is trivial in this harness (no
				// script-loading phase), but it still honors the shared
				// barrier so the start signal's happens-after ordering
				// holds regardless.
				barrierWG.Done()
				startSignal.Wait()
				return runWorker(gctx, vctx, vuIds, entry)
			})
		}
	}

	// Block until every worker has cleared init. This keeps initialization
	// out of the measured run duration.
	barrierWG.Wait()

	started := time.Now()
	for _, run := range runs {
		if run.work.Kind == KindConstantVUs && run.work.Gate != nil {
			run.work.Gate.StartAt(started, run.cfg.Duration)
		}
	}
	startSignal.Start()

	for _, run := range runs {
		if run.work.Kind != KindRampingArrivalRate {
			continue
		}
		run := run
		g.Go(func() error {
			runRateDriver(gctx, started, run.work, run.cfg.Duration)
			return nil
		})
	}

	var progressDone chan struct{}
	progressCtx, cancelProgress := context.WithCancel(ctx)
	if progress != nil {
		progressScenarios := make([]progressScenario, 0, len(runs))
		for _, run := range runs {
			progressScenarios = append(progressScenarios, progressScenario{name: run.cfg.Name, exec: run.cfg.Exec})
		}
		progressDone = make(chan struct{})
		go runProgressLoop(progressCtx, progressDone, started, progressScenarios, progress)
	}

	err := g.Wait()
	cancelProgress()
	if progressDone != nil {
		<-progressDone
	}
	return err
}

type progressScenario struct {
	name string
	exec string
}

// buildWork constructs the executor-specific state for one scenario.
func buildWork(sc ScenarioConfig) (VuWork, error) {
	switch sc.Executor.Kind {
	case KindConstantVUs:
		return VuWork{
			Kind: KindConstantVUs,
			Gate: NewIterationGate(sc.Iterations),
		}, nil
	case KindRampingVUs:
		return VuWork{
			Kind:     KindRampingVUs,
			Schedule: NewRampingSchedule(sc.Executor.StartVUs, sc.Executor.Stages),
		}, nil
	case KindRampingArrivalRate:
		return VuWork{
			Kind:         KindRampingArrivalRate,
			RateSchedule: NewRampingSchedule(sc.Executor.StartRate, sc.Executor.RateStages),
			TimeUnit:     sc.Executor.TimeUnit,
			Pacer:        NewArrivalPacer(uint64(sc.Executor.PreAllocatedVUs.Int64), sc.Executor.MaxVUs),
		}, nil
	default:
		return VuWork{}, ErrInvalidExecutor
	}
}

// runWorker drives one VU's executor-specific loop until its scenario is
// done or ctx is cancelled.
func runWorker(ctx context.Context, vu VuContext, vuIds vuMetricIds, entry EntryFn) error {
	switch vu.Work.Kind {
	case KindConstantVUs:
		return runConstantWorker(ctx, vu, vuIds, entry)
	case KindRampingVUs:
		return runRampingVUsWorker(ctx, vu, vuIds, entry)
	case KindRampingArrivalRate:
		return runArrivalRateWorker(ctx, vu, vuIds, entry)
	default:
		return ErrInvalidExecutor
	}
}

func runConstantWorker(ctx context.Context, vu VuContext, vuIds vuMetricIds, entry EntryFn) error {
	gate := vu.Work.Gate
	for ctx.Err() == nil && gate.Next(time.Now()) {
		if err := invokeEntry(ctx, vu, vuIds, entry); err != nil {
			return err
		}
	}
	return nil
}

func runRampingVUsWorker(ctx context.Context, vu VuContext, vuIds vuMetricIds, entry EntryFn) error {
	schedule := vu.Work.Schedule
	start := time.Now()
	for ctx.Err() == nil {
		elapsed := time.Since(start)
		if schedule.IsDone(elapsed) {
			return nil
		}
		if vu.ScenarioVU > schedule.TargetAt(elapsed) {
			wait := schedule.NextRecheck(elapsed, vu.ScenarioVU)
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		if err := invokeEntry(ctx, vu, vuIds, entry); err != nil {
			return err
		}
	}
	return nil
}

func runArrivalRateWorker(ctx context.Context, vu VuContext, vuIds vuMetricIds, entry EntryFn) error {
	schedule := vu.Work.RateSchedule
	pacer := vu.Work.Pacer
	start := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		elapsed := time.Since(start)
		if schedule.IsDone(elapsed) && pacer.IsDone() {
			if !pacer.ClaimNext(ctx) {
				return nil
			}
			if err := invokeEntry(ctx, vu, vuIds, entry); err != nil {
				return err
			}
			continue
		}
		if vu.ScenarioVU > pacer.ActiveVUs() {
			if !pacer.WaitForUpdate(ctx) {
				return nil
			}
			continue
		}
		if !pacer.ClaimNext(ctx) {
			return nil
		}
		if err := invokeEntry(ctx, vu, vuIds, entry); err != nil {
			return err
		}
	}
}

func invokeEntry(ctx context.Context, vu VuContext, vuIds vuMetricIds, entry EntryFn) error {
	guard := vuIds.enterActiveVU(vu.Registry, vu.Scenario)
	start := time.Now()
	err := entry(ctx, vu)
	duration := time.Since(start)
	guard.release()
	vuIds.recordIteration(vu.Registry, vu.Scenario, duration, err == nil)
	return err
}

// sleepCtx sleeps for d, returning false early (without sleeping the full
// duration) if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runRateDriver releases tokens into work.Pacer at a fixed tick, carrying a
// fractional remainder between ticks so the long-run average hits the
// schedule's target rate. Runs until totalDuration elapses, then marks the
// pacer done.
func runRateDriver(ctx context.Context, started time.Time, work VuWork, totalDuration time.Duration) {
	ticker := time.NewTicker(rateDriverTick)
	defer ticker.Stop()

	var carry float64
	for {
		select {
		case <-ctx.Done():
			work.Pacer.MarkDone()
			return
		case <-ticker.C:
		}

		elapsed := time.Since(started)
		if elapsed >= totalDuration {
			break
		}

		rate := float64(work.RateSchedule.TargetAt(elapsed))
		tickSeconds := rateDriverTick.Seconds()
		unitSeconds := work.TimeUnit.Seconds()
		if unitSeconds <= 0 {
			unitSeconds = 1e-9
		}

		carry += rate * (tickSeconds / unitSeconds)
		due := uint64(math.Floor(carry))
		carry -= float64(due)

		work.Pacer.UpdateDue(due)
	}
	work.Pacer.MarkDone()
}

func runProgressLoop(ctx context.Context, done chan struct{}, started time.Time, scenarios []progressScenario, progress ProgressFn) {
	defer close(done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++
		elapsed := time.Since(started)
		for _, s := range scenarios {
			progress(ProgressUpdate{Tick: tick, Elapsed: elapsed, Scenario: s.name, Exec: s.exec})
		}
	}
}
