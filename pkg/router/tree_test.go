package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereojs/ereo/pkg/common"
)

func noopQuery() *Procedure {
	return NewProcedure().Query(func(ctx *common.Context, input any) (any, error) {
		return nil, nil
	})
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"health"}, SplitPath("health"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath("a.b.c"))
}

func TestResolve(t *testing.T) {
	leaf := noopQuery()
	tree := Routes{
		"system": Routes{
			"health": leaf,
		},
		"echo": noopQuery(),
	}

	t.Run("nested leaf", func(t *testing.T) {
		proc, ok := Resolve(tree, []string{"system", "health"})
		require.True(t, ok)
		assert.Same(t, leaf, proc)
	})

	t.Run("top level leaf", func(t *testing.T) {
		_, ok := Resolve(tree, []string{"echo"})
		assert.True(t, ok)
	})

	t.Run("missing segment", func(t *testing.T) {
		_, ok := Resolve(tree, []string{"system", "nope"})
		assert.False(t, ok)
	})

	t.Run("terminal on subtree", func(t *testing.T) {
		_, ok := Resolve(tree, []string{"system"})
		assert.False(t, ok, "a namespace is not callable")
	})

	t.Run("path continues past a leaf", func(t *testing.T) {
		_, ok := Resolve(tree, []string{"echo", "deeper"})
		assert.False(t, ok)
	})

	t.Run("empty path", func(t *testing.T) {
		_, ok := Resolve(tree, nil)
		assert.False(t, ok)
	})
}

func TestBuilderValueSemantics(t *testing.T) {
	base := NewProcedure().Use(stepRecording("a", nil))
	left := base.Use(stepRecording("b", nil)).Query(func(ctx *common.Context, input any) (any, error) { return nil, nil })
	right := base.Use(stepRecording("c", nil)).Query(func(ctx *common.Context, input any) (any, error) { return nil, nil })

	assert.Len(t, left.steps, 2)
	assert.Len(t, right.steps, 2, "branching a builder must not leak steps across branches")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "query", KindQuery.String())
	assert.Equal(t, "mutation", KindMutation.String())
	assert.Equal(t, "subscription", KindSubscription.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
