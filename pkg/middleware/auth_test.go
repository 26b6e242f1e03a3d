package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ereojs/ereo/pkg/common"
)

func TestAuthResolvedUser(t *testing.T) {
	getUser := func(ctx *common.Context) (any, error) {
		return map[string]string{"id": "u1"}, nil
	}

	res := Execute([]Step{Auth(getUser, nil)}, baseContext())
	require.Nil(t, res.Err)

	user, ok := res.Ctx.User()
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "u1"}, user)
}

func TestAuthNilUserDenied(t *testing.T) {
	getUser := func(ctx *common.Context) (any, error) { return nil, nil }

	res := Execute([]Step{Auth(getUser, nil)}, baseContext())
	require.NotNil(t, res.Err)
	assert.Equal(t, common.CodeUnauthorized, res.Err.Code)
}

func TestAuthResolverErrorCollapsed(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	getUser := func(ctx *common.Context) (any, error) {
		return nil, errors.New("db down")
	}

	res := Execute([]Step{Auth(getUser, zap.New(core))}, baseContext())
	require.NotNil(t, res.Err)
	assert.Equal(t, common.CodeInternal, res.Err.Code)
	assert.Equal(t, "internal server error", res.Err.Message,
		"resolver failures never leak their message")
	assert.Equal(t, 1, logs.FilterMessage("auth resolver failed").Len())
}

func TestAuthOptional(t *testing.T) {
	t.Run("no user proceeds", func(t *testing.T) {
		getUser := func(ctx *common.Context) (any, error) { return nil, nil }
		res := Execute([]Step{AuthOptional(getUser, nil)}, baseContext())
		require.Nil(t, res.Err)
		_, ok := res.Ctx.User()
		assert.False(t, ok)
	})

	t.Run("resolver error proceeds", func(t *testing.T) {
		getUser := func(ctx *common.Context) (any, error) { return nil, errors.New("boom") }
		res := Execute([]Step{AuthOptional(getUser, nil)}, baseContext())
		require.Nil(t, res.Err)
	})

	t.Run("user attached when present", func(t *testing.T) {
		getUser := func(ctx *common.Context) (any, error) { return "u1", nil }
		res := Execute([]Step{AuthOptional(getUser, nil)}, baseContext())
		require.Nil(t, res.Err)
		user, ok := res.Ctx.User()
		require.True(t, ok)
		assert.Equal(t, "u1", user)
	})
}
