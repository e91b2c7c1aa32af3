package grpc

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/service"
)

/*
Client wraps a grpc.ClientConn with the JSON codec and the protocol
metadata every call carries.
*/
type Client struct {
	conn       *grpc.ClientConn
	token      string
	extensions []string
}

type ClientOption func(*Client)

// WithBearerToken attaches a static bearer token to every call.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithExtensions requests the extension URIs on every call.
func WithExtensions(uris ...string) ClientOption {
	return func(c *Client) {
		c.extensions = append(c.extensions, uris...)
	}
}

func NewClient(conn *grpc.ClientConn, opts ...ClientOption) *Client {
	client := &Client{conn: conn}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) callContext(ctx context.Context) context.Context {
	pairs := []string{
		strings.ToLower(service.VersionHeader), service.ProtocolVersion,
	}
	if len(c.extensions) > 0 {
		pairs = append(pairs, strings.ToLower(service.ExtensionsHeader), strings.Join(c.extensions, ", "))
	}
	if c.token != "" {
		pairs = append(pairs, "authorization", "Bearer "+c.token)
	}

	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func (c *Client) callOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

func invoke[P any, R any](ctx context.Context, c *Client, method string, params *P) (*R, error) {
	result := new(R)
	err := c.conn.Invoke(c.callContext(ctx), "/"+ServiceName+"/"+method, params, result, c.callOptions()...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) SendMessage(ctx context.Context, params a2a.MessageSendParams) (a2a.Event, error) {
	frame, err := invoke[a2a.MessageSendParams, WireEvent](ctx, c, "SendMessage", &params)
	if err != nil {
		return nil, err
	}
	return frame.Event, nil
}

func (c *Client) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	return invoke[a2a.TaskQueryParams, a2a.Task](ctx, c, "GetTask", &params)
}

func (c *Client) ListTasks(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	return invoke[a2a.TaskListParams, a2a.TaskList](ctx, c, "ListTasks", &params)
}

func (c *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	params := a2a.TaskIDParams{ID: taskID}
	return invoke[a2a.TaskIDParams, a2a.Task](ctx, c, "CancelTask", &params)
}

func (c *Client) GetAgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	return invoke[Empty, a2a.AgentCard](ctx, c, "GetAgentCard", &Empty{})
}

func (c *Client) GetExtendedAgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	return invoke[Empty, a2a.AgentCard](ctx, c, "GetExtendedAgentCard", &Empty{})
}

func (c *Client) SetTaskPushConfig(ctx context.Context, params a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	return invoke[a2a.TaskPushNotificationConfig, a2a.TaskPushNotificationConfig](ctx, c, "SetTaskPushConfig", &params)
}

func (c *Client) GetTaskPushConfig(ctx context.Context, params a2a.GetTaskPushConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	return invoke[a2a.GetTaskPushConfigParams, a2a.TaskPushNotificationConfig](ctx, c, "GetTaskPushConfig", &params)
}

func (c *Client) ListTaskPushConfig(ctx context.Context, taskID string) ([]*a2a.TaskPushNotificationConfig, error) {
	params := a2a.ListTaskPushConfigParams{TaskID: taskID}
	list, err := invoke[a2a.ListTaskPushConfigParams, PushConfigList](ctx, c, "ListTaskPushConfig", &params)
	if err != nil {
		return nil, err
	}
	return list.Configs, nil
}

func (c *Client) DeleteTaskPushConfig(ctx context.Context, params a2a.DeleteTaskPushConfigParams) error {
	_, err := invoke[a2a.DeleteTaskPushConfigParams, Empty](ctx, c, "DeleteTaskPushConfig", &params)
	return err
}

func (c *Client) stream(ctx context.Context, method string, desc *grpc.StreamDesc, params any) (<-chan a2a.Event, error) {
	stream, err := c.conn.NewStream(c.callContext(ctx), desc, "/"+ServiceName+"/"+method, c.callOptions()...)
	if err != nil {
		return nil, err
	}

	if err := stream.SendMsg(params); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan a2a.Event)

	go func() {
		defer close(out)

		for {
			frame := new(WireEvent)
			if err := stream.RecvMsg(frame); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					log.Error("receiving stream event", "method", method, "error", err)
				}
				return
			}

			select {
			case out <- frame.Event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (c *Client) SendStreamingMessage(ctx context.Context, params a2a.MessageSendParams) (<-chan a2a.Event, error) {
	return c.stream(ctx, "SendStreamingMessage", &Desc.Streams[0], &params)
}

func (c *Client) SubscribeToTask(ctx context.Context, taskID string) (<-chan a2a.Event, error) {
	return c.stream(ctx, "SubscribeToTask", &Desc.Streams[1], &a2a.TaskIDParams{ID: taskID})
}
