package serverfn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ereojs/ereo/pkg/codec"
)

// Client is the remote half of the server-function model. Where the
// server registers a handler under an id, the client calls the same
// id over HTTP and decodes the shared envelope.
type Client struct {
	// BaseURL is the scheme, host, and function base path, for
	// example https://api.example.com/_server-fn.
	BaseURL string
	// CSRFHeader names the marker header sent with every call.
	// Empty means X-Csrf-Protection.
	CSRFHeader string
	// HTTP is the transport. Nil means http.DefaultClient.
	HTTP *http.Client
}

// Call invokes the function registered under id and returns the raw
// data payload. An ok:false envelope comes back as a *common.Error,
// so callers branch on the code the server assigned.
func (c *Client) Call(ctx context.Context, id string, input any) (json.RawMessage, error) {
	raw, err := rawInput(input)
	if err != nil {
		return nil, fmt.Errorf("encode input for %q: %w", id, err)
	}
	body, err := json.Marshal(callBody{Input: raw})
	if err != nil {
		return nil, fmt.Errorf("encode input for %q: %w", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	header := c.CSRFHeader
	if header == "" {
		header = "X-Csrf-Protection"
	}
	req.Header.Set(header, "1")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %q: %w", id, err)
	}
	defer resp.Body.Close()

	envelope, err := codec.DecodeResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode response for %q: %w", id, err)
	}
	if rpcErr := envelope.Err(); rpcErr != nil {
		return nil, rpcErr
	}
	return envelope.Data, nil
}

// CallInto is Call followed by unmarshalling the payload into out.
func (c *Client) CallInto(ctx context.Context, id string, input, out any) error {
	data, err := c.Call(ctx, id, input)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func rawInput(input any) (json.RawMessage, error) {
	if input == nil {
		return nil, nil
	}
	if raw, ok := input.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(input)
}
