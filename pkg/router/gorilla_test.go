package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
)

func startUpgradeServer(t *testing.T, cfg UpgradeConfig) *httptest.Server {
	t.Helper()
	routes := Routes{
		"count": NewProcedure().Subscription(func(ctx context.Context, call *common.Context, input any, sink *Sink) error {
			for i := 1; i <= 3; i++ {
				if !sink.Send(i) {
					return ctx.Err()
				}
			}
			return nil
		}),
	}
	engine := NewSubscriptionEngine(New(routes, Config{Logger: zap.NewNop()}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = engine.Upgrade(w, req, cfg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil {
		resp.Body.Close()
	}
	if conn != nil {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		t.Cleanup(func() { conn.Close() })
	}
	return conn, err
}

func TestUpgradeEndToEnd(t *testing.T) {
	srv := startUpgradeServer(t, UpgradeConfig{
		CheckOrigin: func(*http.Request) bool { return true },
	})
	conn, err := dialWS(t, srv, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(codec.ClientFrame{Type: codec.FrameSubscribe, ID: "s1", Path: "count"}))

	var values []float64
	for {
		var frame codec.ServerFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == codec.FrameComplete {
			assert.Equal(t, "s1", frame.ID)
			break
		}
		require.Equal(t, codec.FrameData, frame.Type)
		require.Equal(t, "s1", frame.ID)
		values = append(values, frame.Data.(float64))
	}
	assert.Equal(t, []float64{1, 2, 3}, values)

	require.NoError(t, conn.WriteJSON(codec.ClientFrame{Type: codec.FramePing}))
	var pong codec.ServerFrame
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, codec.FramePong, pong.Type)
}

func TestUpgradeRejectsCrossOriginByDefault(t *testing.T) {
	srv := startUpgradeServer(t, UpgradeConfig{})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, err := dialWS(t, srv, header)
	require.Error(t, err)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestUpgradeEnforcesReadLimit(t *testing.T) {
	srv := startUpgradeServer(t, UpgradeConfig{
		CheckOrigin: func(*http.Request) bool { return true },
		ReadLimit:   32,
	})
	conn, err := dialWS(t, srv, nil)
	require.NoError(t, err)

	big := `{"type":"ping","id":"` + strings.Repeat("x", 128) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	// The server drops the connection on an oversized frame; the next
	// read observes the close.
	var frame codec.ServerFrame
	err = conn.ReadJSON(&frame)
	assert.Error(t, err)
}
