// Package codec implements the JSON wire formats shared by the HTTP RPC
// protocol and the server-function protocol: the {ok, data|error}
// response envelope, the WebSocket frame types, and a generic schema
// validator for typed inputs.
package codec

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ereojs/ereo/pkg/common"
)

// ErrorBody is the wire form of a structured error.
type ErrorBody struct {
	Code    common.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details any              `json:"details,omitempty"`
}

// Response is the protocol envelope. Every call, successful or not,
// reaches the client in this shape so callers can branch on error.code.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// Err converts a failed envelope back into a structured error. It
// returns nil for successful envelopes.
func (r *Response) Err() *common.Error {
	if r.OK || r.Error == nil {
		return nil
	}
	return &common.Error{
		Code:    r.Error.Code,
		Message: r.Error.Message,
		Details: r.Error.Details,
	}
}

// DecodeResponse reads one envelope from the reader.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WriteResult writes a 200 {ok:true, data} envelope.
func WriteResult(w http.ResponseWriter, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(Response{OK: true, Data: raw})
}

// WriteError writes a {ok:false, error} envelope with the status mapped
// from the error code.
func WriteError(w http.ResponseWriter, rpcErr *common.Error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rpcErr.HTTPStatus())
	return json.NewEncoder(w).Encode(Response{
		OK: false,
		Error: &ErrorBody{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Details: rpcErr.Details,
		},
	})
}

// ApplyHeaders copies middleware-written response headers onto the
// outgoing response. Cache-Control is stripped from failed calls so
// error envelopes are never cached, while CORS and rate-limit headers
// survive both outcomes.
func ApplyHeaders(dst, src http.Header, success bool) {
	for key, values := range src {
		if !success && key == "Cache-Control" {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
