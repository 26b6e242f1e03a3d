package codec

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereojs/ereo/pkg/common"
)

func TestWriteResult(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteResult(rec, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
	assert.Nil(t, resp.Error)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		code       common.ErrorCode
		wantStatus int
	}{
		{common.CodeNotFound, http.StatusNotFound},
		{common.CodeValidationError, http.StatusBadRequest},
		{common.CodeRateLimited, http.StatusTooManyRequests},
		{common.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteError(rec, common.NewError(tt.code, "boom")))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "boom", resp.Error.Message)
		})
	}
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	rpcErr := common.NewError(common.CodeForbidden, "nope").WithDetails(map[string]any{"reason": "policy"})
	require.NoError(t, WriteError(rec, rpcErr))

	resp, err := DecodeResponse(rec.Body)
	require.NoError(t, err)

	got := resp.Err()
	require.NotNil(t, got)
	assert.Equal(t, common.CodeForbidden, got.Code)
	assert.Equal(t, "nope", got.Message)
}

func TestDecodeResponseMalformed(t *testing.T) {
	_, err := DecodeResponse(strings.NewReader("{nope"))
	assert.Error(t, err)
}

func TestResponseErrNilOnSuccess(t *testing.T) {
	resp := &Response{OK: true}
	assert.Nil(t, resp.Err())
}

func TestApplyHeaders(t *testing.T) {
	src := make(http.Header)
	src.Set("Access-Control-Allow-Origin", "*")
	src.Set("X-RateLimit-Limit", "5")
	src.Set("Cache-Control", "public, max-age=60")

	t.Run("success keeps everything", func(t *testing.T) {
		dst := make(http.Header)
		ApplyHeaders(dst, src, true)
		assert.Equal(t, "*", dst.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "5", dst.Get("X-RateLimit-Limit"))
		assert.Equal(t, "public, max-age=60", dst.Get("Cache-Control"))
	})

	t.Run("failure drops cache control only", func(t *testing.T) {
		dst := make(http.Header)
		ApplyHeaders(dst, src, false)
		assert.Equal(t, "*", dst.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "5", dst.Get("X-RateLimit-Limit"))
		assert.Empty(t, dst.Get("Cache-Control"), "error responses are never cacheable")
	})
}
