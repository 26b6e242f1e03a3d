package serverfn

import (
	"encoding/json"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
	"go.uber.org/zap"
)

// callBody is the POST body of a function call.
type callBody struct {
	Input json.RawMessage `json:"input"`
}

// Handle serves function calls under the registry's base path. It
// returns false when the request is outside the base path, so hosts
// can chain it ahead of other handlers.
func (r *Registry) Handle(w http.ResponseWriter, req *http.Request) bool {
	prefix := r.basePath + "/"
	if !strings.HasPrefix(req.URL.Path, prefix) {
		return false
	}

	// The id is checked in its raw and decoded forms before any
	// lookup. Traversal attempts get BAD_REQUEST rather than
	// NOT_FOUND so probing cannot distinguish registered ids.
	rawID := strings.TrimPrefix(req.URL.EscapedPath(), prefix)
	if unsafeID(rawID) {
		r.writeError(w, common.NewError(common.CodeBadRequest, "invalid function id"))
		return true
	}
	id, err := url.PathUnescape(rawID)
	if err != nil || unsafeID(id) {
		r.writeError(w, common.NewError(common.CodeBadRequest, "invalid function id"))
		return true
	}

	switch req.Method {
	case http.MethodOptions:
		r.preflight(w, id)
		return true
	case http.MethodPost:
	default:
		r.writeError(w, common.Errorf(common.CodeMethodNotAllowed, "method %s not allowed", req.Method))
		return true
	}

	if !r.disableCSRF && req.Header.Get(r.csrfHeader) == "" {
		r.writeError(w, common.Errorf(common.CodeCSRF, "missing %s header", r.csrfHeader))
		return true
	}

	fn, ok := r.Lookup(id)
	if !ok {
		r.writeError(w, common.Errorf(common.CodeNotFound, "no server function %q", id))
		return true
	}

	var body callBody
	reader := http.MaxBytesReader(w, req.Body, r.maxBodySize)
	if err := json.NewDecoder(reader).Decode(&body); err != nil {
		r.writeError(w, common.Errorf(common.CodeParseError, "invalid request body: %v", err))
		return true
	}

	result, headers, callErr := r.safeDispatch(fn, req, body.Input)
	if callErr != nil {
		codec.ApplyHeaders(w.Header(), headers, false)
		r.writeError(w, r.collapse(id, callErr))
		return true
	}
	codec.ApplyHeaders(w.Header(), headers, true)
	if err := codec.WriteResult(w, result); err != nil {
		r.logger.Debug("response write failed", zap.String("id", id), zap.Error(err))
	}
	return true
}

// ServeHTTP adapts Handle for hosts that mount the registry as a
// terminal http.Handler. Requests outside the base path get 404.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !r.Handle(w, req) {
		http.NotFound(w, req)
	}
}

// preflight answers an OPTIONS request from the function's CORS
// config alone. Nothing else in the chain runs, so a function whose
// auth always denies still answers preflight with its CORS headers,
// and an unknown id gets a bare 204 rather than a 404 that would leak
// which ids exist.
func (r *Registry) preflight(w http.ResponseWriter, id string) {
	if fn, ok := r.Lookup(id); ok {
		cors := merge(r.defaults.CORS, fn.config.CORS)
		if opts, set := cors.Get(); set {
			opts.WriteHeaders(w.Header(), true)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// safeDispatch runs the full pipeline with panic recovery, so one
// panicking handler cannot take the process down.
func (r *Registry) safeDispatch(fn *Fn, req *http.Request, input json.RawMessage) (result any, headers http.Header, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic recovered in server function",
				zap.String("id", fn.id),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			result = nil
			err = common.NewError(common.CodeInternal, "internal server error")
		}
	}()
	return fn.dispatch(req, input, true)
}

// collapse maps a call error to the envelope error. Unknown errors
// are logged and replaced with a generic internal error so their
// details never reach a client.
func (r *Registry) collapse(id string, err error) *common.Error {
	if rpcErr, ok := common.AsError(err); ok {
		return rpcErr
	}
	r.logger.Error("server function failed", zap.String("id", id), zap.Error(err))
	return common.NewError(common.CodeInternal, "internal server error")
}

func (r *Registry) writeError(w http.ResponseWriter, rpcErr *common.Error) {
	if err := codec.WriteError(w, rpcErr); err != nil {
		r.logger.Debug("error write failed", zap.Error(err))
	}
}

// unsafeID reports whether an id carries a traversal sequence or an
// embedded null byte.
func unsafeID(id string) bool {
	return strings.Contains(id, "..") || strings.ContainsRune(id, 0x00)
}
