package service

import (
	"context"
	"strings"
	"sync"
)

// Protocol headers shared by every transport.
const (
	ExtensionsHeader = "X-A2A-Extensions"
	VersionHeader    = "X-A2A-Version"
)

// ProtocolVersion is the protocol revision this server speaks.
const ProtocolVersion = "0.3.0"

/*
ServerCallContext carries the per-call facts every handler needs: the
authenticated principal, the negotiated protocol version, the extensions
the caller requested, and a cancellation hook the transport fires when
the connection goes away. Transports build one per request.
*/
type ServerCallContext struct {
	User       string
	Version    string
	Extensions []string

	mu        sync.Mutex
	state     map[string]any
	activated []string
	onCancel  []func()
	canceled  bool
}

func NewServerCallContext() *ServerCallContext {
	return &ServerCallContext{state: make(map[string]any)}
}

// Authenticated reports whether the call carries a verified principal.
func (c *ServerCallContext) Authenticated() bool {
	return c != nil && c.User != ""
}

func (c *ServerCallContext) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state[key] = value
}

func (c *ServerCallContext) State(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.state[key]
	return value, ok
}

/*
ActivateExtension records that the server honored a requested extension;
transports echo the activated set back to the caller.
*/
func (c *ServerCallContext) ActivateExtension(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activated = append(c.activated, uri)
}

func (c *ServerCallContext) ActivatedExtensions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.activated))
	copy(out, c.activated)
	return out
}

/*
OnCancel registers a callback fired when the transport stream dies. A
context that is already canceled runs the callback inline.
*/
func (c *ServerCallContext) OnCancel(callback func()) {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		callback()
		return
	}
	c.onCancel = append(c.onCancel, callback)
	c.mu.Unlock()
}

// Cancel fires every registered callback once.
func (c *ServerCallContext) Cancel() {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		return
	}
	c.canceled = true
	callbacks := c.onCancel
	c.onCancel = nil
	c.mu.Unlock()

	for _, callback := range callbacks {
		callback()
	}
}

type principalKey struct{}

// WithPrincipal stashes the authenticated principal on the request
// context; transports read it back when building the call context.
func WithPrincipal(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// PrincipalFrom returns the authenticated principal, or "".
func PrincipalFrom(ctx context.Context) string {
	user, _ := ctx.Value(principalKey{}).(string)
	return user
}

/*
ParseExtensions splits the comma-separated extension header into its
individual URIs.
*/
func ParseExtensions(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
