package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/service"
	"github.com/agentmesh/a2a-core/pkg/utils"
)

// TokenSource supplies a bearer token per request. Nil means anonymous.
type TokenSource func(ctx context.Context) (string, error)

/*
Client is a JSON-RPC 2.0 client for the A2A endpoint. Call performs a
unary method; Stream opens an SSE stream for the streaming methods and
unwraps each envelope frame back into an event.
*/
type Client struct {
	Endpoint   string
	HTTPClient *http.Client

	Token      TokenSource
	Extensions []string

	nextID atomic.Int64
}

func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTPClient: http.DefaultClient}
}

// rawResponse keeps Result undecoded until the caller names its type.
type rawResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

func (c *Client) newRequest(ctx context.Context, method string, params any) (*http.Request, json.RawMessage, error) {
	id, err := json.Marshal(c.nextID.Add(1))
	if err != nil {
		return nil, nil, err
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling params: %w", err)
	}

	payload, err := json.Marshal(Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(service.VersionHeader, service.ProtocolVersion)
	if len(c.Extensions) > 0 {
		request.Header.Set(service.ExtensionsHeader, strings.Join(c.Extensions, ", "))
	}

	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("acquiring token: %w", err)
		}
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return request, id, nil
}

/*
Call invokes a unary method and decodes the result into target (which
may be nil when the result does not matter). Envelope errors come back
as *errors.RpcError.
*/
func (c *Client) Call(ctx context.Context, method string, params any, target any) error {
	request, _, err := c.newRequest(ctx, method, params)
	if err != nil {
		return err
	}

	httpResponse, err := c.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var response rawResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", httpResponse.StatusCode, err)
	}

	if response.Error != nil {
		return response.Error
	}

	if target == nil {
		return nil
	}

	return json.Unmarshal(response.Result, target)
}

// CallEvent invokes a unary method whose result is a kind-tagged event.
func (c *Client) CallEvent(ctx context.Context, method string, params any) (a2a.Event, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}

	return a2a.UnmarshalEvent(raw)
}

/*
Stream invokes a streaming method and returns a channel of events. The
channel closes when the server ends the stream, ctx is canceled, or the
connection drops. A server that rejects the request before streaming
surfaces its envelope error as the returned error.
*/
func (c *Client) Stream(ctx context.Context, method string, params any) (<-chan a2a.Event, error) {
	request, _, err := c.newRequest(ctx, method, params)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")

	httpResponse, err := c.HTTPClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	if mediaType := httpResponse.Header.Get("Content-Type"); !strings.HasPrefix(mediaType, "text/event-stream") {
		// Pre-stream rejection arrives as a plain response envelope.
		defer httpResponse.Body.Close()

		var response rawResponse
		if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
			return nil, fmt.Errorf("decoding rejection (status %d): %w", httpResponse.StatusCode, err)
		}
		if response.Error != nil {
			return nil, response.Error
		}
		return nil, fmt.Errorf("expected event stream, got %s", mediaType)
	}

	out := make(chan a2a.Event)

	go func() {
		defer close(out)
		defer httpResponse.Body.Close()

		reader := bufio.NewReader(httpResponse.Body)

		for {
			data, err := utils.ReadSSE(reader)
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					log.Error("reading event stream", "method", method, "error", err)
				}
				return
			}
			if data == "" {
				continue
			}

			var frame rawResponse
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				log.Error("decoding stream frame", "method", method, "error", err)
				continue
			}

			if frame.Error != nil {
				log.Error("stream error frame", "method", method, "error", frame.Error)
				return
			}

			event, err := a2a.UnmarshalEvent(frame.Result)
			if err != nil {
				log.Error("decoding stream event", "method", method, "error", err)
				continue
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
