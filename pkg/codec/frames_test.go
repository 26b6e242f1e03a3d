package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereojs/ereo/pkg/common"
)

func TestDecodeClientFrame(t *testing.T) {
	t.Run("subscribe", func(t *testing.T) {
		frame, err := DecodeClientFrame([]byte(`{"type":"subscribe","id":"s1","path":"ticks","input":{"count":3}}`))
		require.NoError(t, err)
		assert.Equal(t, FrameSubscribe, frame.Type)
		assert.Equal(t, "s1", frame.ID)
		assert.Equal(t, "ticks", frame.Path)
		assert.JSONEq(t, `{"count":3}`, string(frame.Input))
	})

	t.Run("ping", func(t *testing.T) {
		frame, err := DecodeClientFrame([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, FramePing, frame.Type)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := DecodeClientFrame([]byte(`{"type":"shout","id":"s1"}`))
		assert.Error(t, err)
	})

	t.Run("missing type rejected", func(t *testing.T) {
		_, err := DecodeClientFrame([]byte(`{"id":"s1"}`))
		assert.Error(t, err)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, err := DecodeClientFrame([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestServerFrameBuilders(t *testing.T) {
	data := DataFrame("s1", 42)
	assert.Equal(t, &ServerFrame{Type: FrameData, ID: "s1", Data: 42}, data)

	errFrame := ErrorFrame("s1", common.NewError(common.CodeDuplicateID, "dup"))
	assert.Equal(t, FrameError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, common.CodeDuplicateID, errFrame.Error.Code)

	assert.Equal(t, &ServerFrame{Type: FrameComplete, ID: "s1"}, CompleteFrame("s1"))
	assert.Equal(t, &ServerFrame{Type: FramePong}, PongFrame())
}
