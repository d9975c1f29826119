package executor

import (
	"errors"
	"time"

	"gopkg.in/guregu/null.v3"
)

// Kind identifies one of the three executor shapes a scenario can run
// under.
type Kind int

const (
	KindConstantVUs Kind = iota
	KindRampingVUs
	KindRampingArrivalRate
)

var (
	ErrInvalidVUs            = errors.New("executor: vus must be greater than zero")
	ErrInvalidIterations     = errors.New("executor: iterations must be greater than zero")
	ErrInvalidStages         = errors.New("executor: stages must be non-empty with a positive total duration")
	ErrInvalidTimeUnit       = errors.New("executor: time_unit must be greater than zero")
	ErrInvalidPreAllocatedVU = errors.New("executor: pre_allocated_vus must be greater than zero")
	ErrInvalidMaxVUs         = errors.New("executor: max_vus must be at least pre_allocated_vus")
	ErrInvalidExecutor       = errors.New("executor: unknown executor kind")
)

// ScenarioExecutor carries the kind-specific configuration for one
// scenario. Only the fields matching Kind are populated.
type ScenarioExecutor struct {
	Kind Kind

	// ConstantVUs
	VUs uint64

	// RampingVUs
	StartVUs uint64
	Stages   []Stage

	// RampingArrivalRate
	StartRate       uint64
	TimeUnit        time.Duration
	PreAllocatedVUs null.Int // unset defaults to 1; explicit zero is an error
	MaxVUs          uint64
	RateStages      []Stage
}

// maxVUs returns the largest number of VUs this executor shape can ever
// run concurrently, used to size the init barrier.
func (e ScenarioExecutor) maxVUs() uint64 {
	switch e.Kind {
	case KindConstantVUs:
		return e.VUs
	case KindRampingVUs:
		max := e.StartVUs
		for _, st := range e.Stages {
			if st.Target > max {
				max = st.Target
			}
		}
		return max
	case KindRampingArrivalRate:
		return e.MaxVUs
	default:
		return 0
	}
}

// ScenarioConfig is one fully-resolved scenario: its name, entry function,
// executor shape, and optional iteration/duration caps for the constant
// shape.
type ScenarioConfig struct {
	Name       string
	Exec       string
	Executor   ScenarioExecutor
	Iterations uint64 // 0 means unbounded
	Duration   time.Duration
}

// ScenarioOptions is the script-level description of one scenario, prior
// to executor validation.
type ScenarioOptions struct {
	Name       string
	Exec       string
	Tags       map[string]string
	Executor   ScenarioExecutor
	Iterations null.Int // unset means unbounded (subject to Duration)
	Duration   time.Duration
}

// ScriptOptions is the set of run options a script can declare: top-level
// defaults plus a list of named scenarios.
type ScriptOptions struct {
	VUs        uint64
	Iterations null.Int
	Duration   time.Duration
	Scenarios  []ScenarioOptions
}

// RunConfig is the set of values a caller can force from outside the
// script, overriding whatever the script itself declares. A zero value
// means "not overridden".
type RunConfig struct {
	VUs        uint64
	Iterations null.Int
	Duration   time.Duration
}

func (c RunConfig) hasOverride() bool {
	return c.VUs != 0 || c.Iterations.Valid || c.Duration != 0
}

// resolveIterations picks the iteration count to use: override if it was
// explicitly set, else declared, else "unset" (0, no error — duration or
// the unbounded default takes over). An explicit zero on whichever of the
// two wins is a configuration error, matching ErrInvalidIterations rather
// than silently defaulting to 1.
func resolveIterations(override, declared null.Int) (uint64, error) {
	v := override
	if !v.Valid {
		v = declared
	}
	if !v.Valid {
		return 0, nil
	}
	if v.Int64 <= 0 {
		return 0, ErrInvalidIterations
	}
	return uint64(v.Int64), nil
}

// ResolveScenarios merges cfg's overrides with opts' scenarios (or its
// top-level defaults, if no scenario was declared) into a validated list
// of ScenarioConfig. Per-scenario values take precedence over top-level
// ones; a non-zero field on cfg forces every resulting executor down to
// the constant-VUs shape, regardless of what the script requested.
func ResolveScenarios(opts ScriptOptions, cfg RunConfig) ([]ScenarioConfig, error) {
	if len(opts.Scenarios) > 0 {
		out := make([]ScenarioConfig, 0, len(opts.Scenarios))
		for _, s := range opts.Scenarios {
			resolved, err := resolveScenario(s, cfg)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	}

	vus := cfg.VUs
	if vus == 0 {
		vus = opts.VUs
	}
	if vus == 0 {
		vus = 1
	}
	if vus == 0 {
		return nil, ErrInvalidVUs
	}

	iterations, err := resolveIterations(cfg.Iterations, opts.Iterations)
	if err != nil {
		return nil, err
	}
	duration := cfg.Duration
	if duration == 0 {
		duration = opts.Duration
	}
	if iterations == 0 && duration == 0 {
		iterations = 1
	}

	return []ScenarioConfig{{
		Name:       "default",
		Exec:       "default",
		Executor:   ScenarioExecutor{Kind: KindConstantVUs, VUs: vus},
		Iterations: iterations,
		Duration:   duration,
	}}, nil
}

func resolveScenario(s ScenarioOptions, cfg RunConfig) (ScenarioConfig, error) {
	if cfg.hasOverride() {
		vus := cfg.VUs
		if vus == 0 {
			vus = s.Executor.maxVUs()
		}
		if vus == 0 {
			vus = 1
		}
		iterations, err := resolveIterations(cfg.Iterations, s.Iterations)
		if err != nil {
			return ScenarioConfig{}, err
		}
		duration := cfg.Duration
		if duration == 0 {
			duration = s.Duration
		}
		if iterations == 0 && duration == 0 {
			iterations = 1
		}
		return ScenarioConfig{
			Name:       s.Name,
			Exec:       s.Exec,
			Executor:   ScenarioExecutor{Kind: KindConstantVUs, VUs: vus},
			Iterations: iterations,
			Duration:   duration,
		}, nil
	}

	switch s.Executor.Kind {
	case KindConstantVUs:
		if s.Executor.VUs == 0 {
			return ScenarioConfig{}, ErrInvalidVUs
		}
		iterations, err := resolveIterations(null.Int{}, s.Iterations)
		if err != nil {
			return ScenarioConfig{}, err
		}
		duration := s.Duration
		if iterations == 0 && duration == 0 {
			iterations = 1
		}
		if iterations != 0 && duration != 0 {
			// Both caps present: iterations still wins, duration is an
			// additional early-out the gate enforces via StartAt.
		}
		return ScenarioConfig{
			Name:       s.Name,
			Exec:       s.Exec,
			Executor:   s.Executor,
			Iterations: iterations,
			Duration:   duration,
		}, nil

	case KindRampingVUs:
		if len(s.Executor.Stages) == 0 {
			return ScenarioConfig{}, ErrInvalidStages
		}
		var total time.Duration
		for _, st := range s.Executor.Stages {
			total = saturatingAddDuration(total, st.Duration)
		}
		if total <= 0 {
			return ScenarioConfig{}, ErrInvalidStages
		}
		return ScenarioConfig{
			Name:     s.Name,
			Exec:     s.Exec,
			Executor: s.Executor,
			Duration: total,
		}, nil

	case KindRampingArrivalRate:
		if s.Executor.TimeUnit <= 0 {
			return ScenarioConfig{}, ErrInvalidTimeUnit
		}
		preAllocated := uint64(1)
		if s.Executor.PreAllocatedVUs.Valid {
			if s.Executor.PreAllocatedVUs.Int64 <= 0 {
				return ScenarioConfig{}, ErrInvalidPreAllocatedVU
			}
			preAllocated = uint64(s.Executor.PreAllocatedVUs.Int64)
		}
		maxVUs := s.Executor.MaxVUs
		if maxVUs == 0 {
			maxVUs = preAllocated
		}
		if maxVUs < preAllocated {
			return ScenarioConfig{}, ErrInvalidMaxVUs
		}
		if len(s.Executor.RateStages) == 0 {
			return ScenarioConfig{}, ErrInvalidStages
		}
		var total time.Duration
		for _, st := range s.Executor.RateStages {
			total = saturatingAddDuration(total, st.Duration)
		}
		if total <= 0 {
			return ScenarioConfig{}, ErrInvalidStages
		}
		executor := s.Executor
		executor.PreAllocatedVUs = null.IntFrom(int64(preAllocated))
		executor.MaxVUs = maxVUs
		return ScenarioConfig{
			Name:     s.Name,
			Exec:     s.Exec,
			Executor: executor,
			Duration: total,
		}, nil

	default:
		return ScenarioConfig{}, ErrInvalidExecutor
	}
}
