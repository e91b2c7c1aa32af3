package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "a2a.v1.A2AService"

// Empty is the request/response shape of parameterless RPCs.
type Empty struct{}

// PushConfigList wraps the list result so it rides as one message.
type PushConfigList struct {
	Configs []*a2a.TaskPushNotificationConfig `json:"configs"`
}

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier func(token string) (string, error)

/*
Server exposes the request handler as a gRPC service. All payloads ride
the JSON codec, so clients must dial with the matching content-subtype.
*/
type Server struct {
	handler *service.RequestHandler
	verify  TokenVerifier
}

type ServerOption func(*Server)

// WithTokenVerifier authenticates bearer tokens in request metadata.
func WithTokenVerifier(verify TokenVerifier) ServerOption {
	return func(s *Server) {
		s.verify = verify
	}
}

func NewServer(handler *service.RequestHandler, opts ...ServerOption) *Server {
	server := &Server{handler: handler}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// Register mounts the service on a grpc.Server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	registrar.RegisterService(&Desc, s)
}

// callFromMetadata mirrors service.CallFromRequest for gRPC metadata.
func (s *Server) callFromMetadata(ctx context.Context) (*service.ServerCallContext, error) {
	call := service.NewServerCallContext()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return call, nil
	}

	if values := md.Get(strings.ToLower(service.VersionHeader)); len(values) > 0 {
		call.Version = values[0]
	}
	if values := md.Get(strings.ToLower(service.ExtensionsHeader)); len(values) > 0 {
		call.Extensions = service.ParseExtensions(strings.Join(values, ","))
	}

	if values := md.Get("authorization"); len(values) > 0 && s.verify != nil {
		principal, err := s.verify(strings.TrimPrefix(values[0], "Bearer "))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		call.User = principal
	}

	return call, nil
}

func (s *Server) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (*WireEvent, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	event, err := s.handler.OnMessageSend(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}

	return &WireEvent{Event: event}, nil
}

func (s *Server) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	task, err := s.handler.OnGetTask(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return task, nil
}

func (s *Server) ListTasks(ctx context.Context, params *a2a.TaskListParams) (*a2a.TaskList, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.handler.OnListTasks(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return list, nil
}

func (s *Server) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	task, err := s.handler.OnCancelTask(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return task, nil
}

func (s *Server) GetAgentCard(ctx context.Context, _ *Empty) (*a2a.AgentCard, error) {
	card := s.handler.AgentCard()
	return &card, nil
}

func (s *Server) GetExtendedAgentCard(ctx context.Context, _ *Empty) (*a2a.AgentCard, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	card, err := s.handler.ExtendedAgentCard(call)
	if err != nil {
		return nil, toStatus(err)
	}
	return card, nil
}

func (s *Server) SetTaskPushConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	saved, err := s.handler.OnSetTaskPushConfig(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return saved, nil
}

func (s *Server) GetTaskPushConfig(ctx context.Context, params *a2a.GetTaskPushConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	config, err := s.handler.OnGetTaskPushConfig(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return config, nil
}

func (s *Server) ListTaskPushConfig(ctx context.Context, params *a2a.ListTaskPushConfigParams) (*PushConfigList, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	configs, err := s.handler.OnListTaskPushConfig(ctx, *params, call)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PushConfigList{Configs: configs}, nil
}

func (s *Server) DeleteTaskPushConfig(ctx context.Context, params *a2a.DeleteTaskPushConfigParams) (*Empty, error) {
	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.handler.OnDeleteTaskPushConfig(ctx, *params, call); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) SendStreamingMessage(params *a2a.MessageSendParams, stream grpc.ServerStream) error {
	ctx := stream.Context()

	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return err
	}

	events, err := s.handler.OnMessageSendStream(ctx, *params, call)
	if err != nil {
		return toStatus(err)
	}

	return forwardStream(ctx, events, stream)
}

func (s *Server) SubscribeToTask(params *a2a.TaskIDParams, stream grpc.ServerStream) error {
	ctx := stream.Context()

	call, err := s.callFromMetadata(ctx)
	if err != nil {
		return err
	}

	events, err := s.handler.OnSubscribeToTask(ctx, *params, call)
	if err != nil {
		return toStatus(err)
	}

	return forwardStream(ctx, events, stream)
}

func forwardStream(ctx context.Context, events <-chan a2a.Event, stream grpc.ServerStream) error {
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case event, open := <-events:
			if !open {
				return nil
			}
			if err := stream.SendMsg(&WireEvent{Event: event}); err != nil {
				return err
			}
		}
	}
}

// toStatus maps protocol errors onto the gRPC status vocabulary.
func toStatus(err error) error {
	rpcErr := errors.AsRpcError(err)

	var code codes.Code
	switch rpcErr.Code {
	case errors.ErrInvalidRequest.Code, errors.ErrInvalidParams.Code,
		errors.ErrContentTypeNotSupported.Code:
		code = codes.InvalidArgument
	case errors.ErrMethodNotFound.Code, errors.ErrTaskNotFound.Code,
		errors.ErrPushConfigNotFound.Code:
		code = codes.NotFound
	case errors.ErrTaskNotCancelable.Code, errors.ErrExtendedCardNotConfigured.Code,
		errors.ErrExtensionSupportRequired.Code:
		code = codes.FailedPrecondition
	case errors.ErrUnsupportedOperation.Code, errors.ErrPushNotificationNotSupported.Code,
		errors.ErrVersionNotSupported.Code:
		code = codes.Unimplemented
	case errors.ErrAuthentication.Code:
		code = codes.Unauthenticated
	case errors.ErrAuthorization.Code:
		code = codes.PermissionDenied
	default:
		code = codes.Internal
	}

	return status.Error(code, rpcErr.Message)
}
