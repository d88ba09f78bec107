package eventmachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func trafficLightConfig() map[string]any {
	return map[string]any{
		"id":      "trafficLight",
		"initial": "green",
		"states": map[string]any{
			"green":  map[string]any{"on": map[string]any{"NEXT": "yellow"}},
			"yellow": map[string]any{"on": map[string]any{"NEXT": "red"}},
			"red":    map[string]any{},
		},
	}
}

func TestDefine_TrafficLight(t *testing.T) {
	def, err := Define(trafficLightConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, "green", def.Root.InitialChild)
	require.Equal(t, 1, def.Version)

	green, ok := def.Root.Child("green")
	require.True(t, ok)
	require.Equal(t, KindAtomic, green.Kind)
	require.Contains(t, green.Transitions, "NEXT")
}

func TestDefine_UnknownTopLevelKeyRejected(t *testing.T) {
	cfg := trafficLightConfig()
	cfg["bogus"] = true
	_, err := Define(cfg, nil)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestDefine_AlwaysOutsideOnRejected(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "a",
		"states": map[string]any{
			"a": map[string]any{"@always": "b"},
			"b": map[string]any{},
		},
	}
	_, err := Define(cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be defined under")
}

func TestDefine_MissingIDGetsGeneratedUUID(t *testing.T) {
	cfg := trafficLightConfig()
	delete(cfg, "id")
	def, err := Define(cfg, nil)
	require.NoError(t, err)
	require.NotEmpty(t, def.ID)

	other, err := Define(cfg, nil)
	require.NoError(t, err)
	require.NotEqual(t, def.ID, other.ID)
}

func TestDefine_VersionNonPositiveBecomesOne(t *testing.T) {
	cfg := trafficLightConfig()
	cfg["version"] = -3.0
	def, err := Define(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, 1, def.Version)
}

func TestDefine_ParallelRequiresCompoundRegionsWithOwnInitial(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "p",
		"states": map[string]any{
			"p": map[string]any{
				"type": "parallel",
				"states": map[string]any{
					"r1": map[string]any{"initial": "r1a", "states": map[string]any{"r1a": map[string]any{}, "r1b": map[string]any{}}},
					"r2": map[string]any{"initial": "r2a", "states": map[string]any{"r2a": map[string]any{}, "r2b": map[string]any{}}},
				},
			},
		},
	}
	def, err := Define(cfg, nil)
	require.NoError(t, err)
	p, _ := def.Root.Child("p")
	require.Equal(t, KindParallel, p.Kind)
	require.Empty(t, p.InitialChild)
}

func TestDefine_ParallelWithInitialRejected(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "p",
		"states": map[string]any{
			"p": map[string]any{
				"type":    "parallel",
				"initial": "r1",
				"states": map[string]any{
					"r1": map[string]any{"initial": "a", "states": map[string]any{"a": map[string]any{}}},
				},
			},
		},
	}
	_, err := Define(cfg, nil)
	require.Error(t, err)
}

func TestDefine_FinalStateWithChildrenRejected(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "a",
		"states": map[string]any{
			"a": map[string]any{
				"type":    "final",
				"initial": "x",
				"states":  map[string]any{"x": map[string]any{}},
			},
		},
	}
	_, err := Define(cfg, nil)
	require.Error(t, err)
}

func TestDefine_UnresolvableTransitionTargetRejected(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "a",
		"states": map[string]any{
			"a": map[string]any{"on": map[string]any{"EVT": "nowhere"}},
		},
	}
	_, err := Define(cfg, nil)
	require.Error(t, err)
	var nsErr *NoStateDefinitionError
	require.ErrorAs(t, err, &nsErr)
}

func TestResolveStateByString_Ambiguous(t *testing.T) {
	cfg := map[string]any{
		"id":      "m",
		"initial": "x",
		"states": map[string]any{
			"x": map[string]any{
				"initial": "b",
				"states":  map[string]any{"b": map[string]any{}},
			},
			"y": map[string]any{
				"initial": "b",
				"states":  map[string]any{"b": map[string]any{}},
			},
		},
	}
	def, err := Define(cfg, nil)
	require.NoError(t, err)

	_, err = def.resolveStateByString(".b")
	require.Error(t, err)
	var aerr *AmbiguousStateError
	require.ErrorAs(t, err, &aerr)
}

func TestDefineYAML(t *testing.T) {
	yamlDoc := []byte(`
id: trafficLight
initial: green
states:
  green:
    on:
      NEXT: yellow
  yellow:
    on:
      NEXT: red
  red: {}
`)
	def, err := DefineYAML(yamlDoc, nil)
	require.NoError(t, err)
	require.Equal(t, "green", def.Root.InitialChild)
}
