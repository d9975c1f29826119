package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
)

func TestResolveScenariosDefaultScenarioUsesOneIterationWhenUnspecified(t *testing.T) {
	t.Parallel()

	out, err := ResolveScenarios(ScriptOptions{}, RunConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(1), out[0].Executor.VUs)
	assert.Equal(t, uint64(1), out[0].Iterations)
	assert.Equal(t, KindConstantVUs, out[0].Executor.Kind)
}

func TestResolveScenariosDefaultScenarioPrefersDurationOverIterations(t *testing.T) {
	t.Parallel()

	out, err := ResolveScenarios(ScriptOptions{Duration: 30 * time.Second}, RunConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(0), out[0].Iterations)
	assert.Equal(t, 30*time.Second, out[0].Duration)
}

func TestResolveScenariosCLIOverrideForcesConstantVUs(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{
		Scenarios: []ScenarioOptions{{
			Name: "ramp",
			Exec: "ramp",
			Executor: ScenarioExecutor{
				Kind:     KindRampingVUs,
				StartVUs: 1,
				Stages:   []Stage{{Duration: time.Second, Target: 5}},
			},
		}},
	}
	out, err := ResolveScenarios(opts, RunConfig{VUs: 3})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, KindConstantVUs, out[0].Executor.Kind)
	assert.Equal(t, uint64(3), out[0].Executor.VUs)
}

func TestResolveScenariosConstantVUsZeroIsInvalid(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name:     "s",
		Executor: ScenarioExecutor{Kind: KindConstantVUs, VUs: 0},
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidVUs)
}

func TestResolveScenariosRampingVUsRequiresStages(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name:     "s",
		Executor: ScenarioExecutor{Kind: KindRampingVUs, StartVUs: 1},
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidStages)
}

func TestResolveScenariosRampingArrivalRateDefaultsPreAllocatedVUs(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name: "s",
		Executor: ScenarioExecutor{
			Kind:       KindRampingArrivalRate,
			TimeUnit:   time.Second,
			RateStages: []Stage{{Duration: time.Second, Target: 10}},
		},
	}}}
	out, err := ResolveScenarios(opts, RunConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, null.IntFrom(1), out[0].Executor.PreAllocatedVUs)
	assert.Equal(t, uint64(1), out[0].Executor.MaxVUs)
}

func TestResolveScenariosRampingArrivalRateMaxVUsBelowPreAllocatedIsInvalid(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name: "s",
		Executor: ScenarioExecutor{
			Kind:            KindRampingArrivalRate,
			TimeUnit:        time.Second,
			PreAllocatedVUs: null.IntFrom(5),
			MaxVUs:          2,
			RateStages:      []Stage{{Duration: time.Second, Target: 10}},
		},
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidMaxVUs)
}

func TestResolveScenariosRampingArrivalRateRequiresTimeUnit(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name:     "s",
		Executor: ScenarioExecutor{Kind: KindRampingArrivalRate, RateStages: []Stage{{Duration: time.Second, Target: 10}}},
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidTimeUnit)
}

func TestResolveScenariosExplicitZeroIterationsIsInvalid(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name:       "s",
		Executor:   ScenarioExecutor{Kind: KindConstantVUs, VUs: 1},
		Iterations: null.IntFrom(0),
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidIterations)
}

func TestResolveScenariosRunConfigExplicitZeroIterationsIsInvalid(t *testing.T) {
	t.Parallel()

	_, err := ResolveScenarios(ScriptOptions{}, RunConfig{Iterations: null.IntFrom(0)})
	assert.ErrorIs(t, err, ErrInvalidIterations)
}

func TestResolveScenariosRampingArrivalRateExplicitZeroPreAllocatedVUsIsInvalid(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{Scenarios: []ScenarioOptions{{
		Name: "s",
		Executor: ScenarioExecutor{
			Kind:            KindRampingArrivalRate,
			TimeUnit:        time.Second,
			PreAllocatedVUs: null.IntFrom(0),
			RateStages:      []Stage{{Duration: time.Second, Target: 10}},
		},
	}}}
	_, err := ResolveScenarios(opts, RunConfig{})
	assert.ErrorIs(t, err, ErrInvalidPreAllocatedVU)
}

func TestResolveScenariosPerScenarioOverridesTopLevelDefaults(t *testing.T) {
	t.Parallel()

	opts := ScriptOptions{
		VUs: 1,
		Scenarios: []ScenarioOptions{{
			Name:     "s",
			Executor: ScenarioExecutor{Kind: KindConstantVUs, VUs: 7},
		}},
	}
	out, err := ResolveScenarios(opts, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), out[0].Executor.VUs)
}
