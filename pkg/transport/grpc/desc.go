package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

/*
Desc is the hand-declared service descriptor. There is no .proto: the
JSON codec carries the shared wire types, so the descriptor only names
the methods and their handler shims.
*/
var Desc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "GetTask", Handler: getTaskHandler},
		{MethodName: "ListTasks", Handler: listTasksHandler},
		{MethodName: "CancelTask", Handler: cancelTaskHandler},
		{MethodName: "GetAgentCard", Handler: getAgentCardHandler},
		{MethodName: "GetExtendedAgentCard", Handler: getExtendedAgentCardHandler},
		{MethodName: "SetTaskPushConfig", Handler: setTaskPushConfigHandler},
		{MethodName: "GetTaskPushConfig", Handler: getTaskPushConfigHandler},
		{MethodName: "ListTaskPushConfig", Handler: listTaskPushConfigHandler},
		{MethodName: "DeleteTaskPushConfig", Handler: deleteTaskPushConfigHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SendStreamingMessage", Handler: sendStreamingMessageHandler, ServerStreams: true},
		{StreamName: "SubscribeToTask", Handler: subscribeToTaskHandler, ServerStreams: true},
	},
	Metadata: "a2a/v1/a2a.json",
}

func unary[P any, R any](
	invoke func(*Server, context.Context, *P) (R, error),
	fullMethod string,
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		params := new(P)
		if err := dec(params); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return invoke(srv.(*Server), ctx, params)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return invoke(srv.(*Server), ctx, req.(*P))
		}

		return interceptor(ctx, params, info, handler)
	}
}

var (
	sendMessageHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.MessageSendParams) (*WireEvent, error) {
			return s.SendMessage(ctx, p)
		}, "/"+ServiceName+"/SendMessage")

	getTaskHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.TaskQueryParams) (*a2a.Task, error) {
			return s.GetTask(ctx, p)
		}, "/"+ServiceName+"/GetTask")

	listTasksHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.TaskListParams) (*a2a.TaskList, error) {
			return s.ListTasks(ctx, p)
		}, "/"+ServiceName+"/ListTasks")

	cancelTaskHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.TaskIDParams) (*a2a.Task, error) {
			return s.CancelTask(ctx, p)
		}, "/"+ServiceName+"/CancelTask")

	getAgentCardHandler = unary(
		func(s *Server, ctx context.Context, p *Empty) (*a2a.AgentCard, error) {
			return s.GetAgentCard(ctx, p)
		}, "/"+ServiceName+"/GetAgentCard")

	getExtendedAgentCardHandler = unary(
		func(s *Server, ctx context.Context, p *Empty) (*a2a.AgentCard, error) {
			return s.GetExtendedAgentCard(ctx, p)
		}, "/"+ServiceName+"/GetExtendedAgentCard")

	setTaskPushConfigHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
			return s.SetTaskPushConfig(ctx, p)
		}, "/"+ServiceName+"/SetTaskPushConfig")

	getTaskPushConfigHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.GetTaskPushConfigParams) (*a2a.TaskPushNotificationConfig, error) {
			return s.GetTaskPushConfig(ctx, p)
		}, "/"+ServiceName+"/GetTaskPushConfig")

	listTaskPushConfigHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.ListTaskPushConfigParams) (*PushConfigList, error) {
			return s.ListTaskPushConfig(ctx, p)
		}, "/"+ServiceName+"/ListTaskPushConfig")

	deleteTaskPushConfigHandler = unary(
		func(s *Server, ctx context.Context, p *a2a.DeleteTaskPushConfigParams) (*Empty, error) {
			return s.DeleteTaskPushConfig(ctx, p)
		}, "/"+ServiceName+"/DeleteTaskPushConfig")
)

func sendStreamingMessageHandler(srv any, stream grpc.ServerStream) error {
	params := new(a2a.MessageSendParams)
	if err := stream.RecvMsg(params); err != nil {
		return err
	}
	return srv.(*Server).SendStreamingMessage(params, stream)
}

func subscribeToTaskHandler(srv any, stream grpc.ServerStream) error {
	params := new(a2a.TaskIDParams)
	if err := stream.RecvMsg(params); err != nil {
		return err
	}
	return srv.(*Server).SubscribeToTask(params, stream)
}
