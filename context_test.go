package eventmachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextManager_DotPathGetSet(t *testing.T) {
	cm := NewContextManager(map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "hello"},
			},
		},
	}, nil)

	v, ok := cm.Get("a.b.0.c")
	require.True(t, ok)
	require.Equal(t, "hello", v)

	require.NoError(t, cm.Set("a.b.0.c", "world"))
	v, ok = cm.Get("a.b.0.c")
	require.True(t, ok)
	require.Equal(t, "world", v)

	require.NoError(t, cm.Set("a.d.e", 42.0))
	v, ok = cm.Get("a.d.e")
	require.True(t, ok)
	require.Equal(t, 42.0, v)
}

func TestContextManager_Has(t *testing.T) {
	cm := NewContextManager(map[string]any{"count": 1.0, "name": "x"}, nil)

	require.True(t, cm.Has("count", FieldNumber))
	require.False(t, cm.Has("count", FieldString))
	require.True(t, cm.Has("name", FieldAny))
	require.False(t, cm.Has("missing", FieldAny))
}

func TestContextManager_DirtySetAndDelta(t *testing.T) {
	cm := NewContextManager(map[string]any{"x": 1.0, "y": 2.0}, nil)
	require.Empty(t, cm.Delta())

	require.NoError(t, cm.Set("x", 5.0))
	delta := cm.Delta()
	require.Equal(t, map[string]any{"x": 5.0}, delta)

	cm.ClearDirty()
	require.Empty(t, cm.Delta())
}

func TestContextManager_ApplyDeltaFoldsInSequence(t *testing.T) {
	cm := NewContextManager(map[string]any{}, nil)
	cm.ApplyDelta(map[string]any{"x": 1.0})
	cm.ApplyDelta(map[string]any{"x": 2.0, "y": "z"})

	v, _ := cm.Get("x")
	require.Equal(t, 2.0, v)
	v, _ = cm.Get("y")
	require.Equal(t, "z", v)
}

func TestContextManager_ForkIsIndependent(t *testing.T) {
	cm := NewContextManager(map[string]any{"x": 1.0}, nil)
	fork := cm.Fork()

	require.NoError(t, fork.Set("x", 99.0))

	orig, _ := cm.Get("x")
	forked, _ := fork.Get("x")
	require.Equal(t, 1.0, orig)
	require.Equal(t, 99.0, forked)
}

func TestContextManager_SelfValidate(t *testing.T) {
	schema := []FieldSchema{{Path: "count", Type: FieldNumber, Required: true}}

	cm := NewContextManager(map[string]any{"count": 1.0}, schema)
	require.NoError(t, cm.SelfValidate())

	missing := NewContextManager(map[string]any{}, schema)
	require.Error(t, missing.SelfValidate())
}

func TestContextManager_MissingRequired(t *testing.T) {
	required := []FieldSchema{{Path: "a.b", Type: FieldString}}
	cm := NewContextManager(map[string]any{}, nil)

	path, missing := cm.MissingRequired(required)
	require.True(t, missing)
	require.Equal(t, "a.b", path)

	require.NoError(t, cm.Set("a.b", "present"))
	_, missing = cm.MissingRequired(required)
	require.False(t, missing)
}
