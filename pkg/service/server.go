package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/agentmesh/a2a-core/pkg/service/sse"
)

/*
A2AServer mounts every transport surface on one fiber app: the agent
card discovery document, the REST resource routes, the JSON-RPC
endpoint, and the firehose event stream. The JSON-RPC handler is
injected as a plain http.Handler so the transport packages stay
decoupled from the assembly.
*/
type A2AServer struct {
	app     *fiber.App
	handler *RequestHandler
	rest    *RESTHandler
	rpc     http.Handler
	broker  *sse.Broker

	middleware []func(http.Handler) http.Handler
}

type ServerOption func(*A2AServer)

// WithRPCHandler mounts a JSON-RPC endpoint at /rpc.
func WithRPCHandler(rpc http.Handler) ServerOption {
	return func(s *A2AServer) {
		s.rpc = rpc
	}
}

// WithBroker mounts the firehose event stream at /events.
func WithBroker(broker *sse.Broker) ServerOption {
	return func(s *A2AServer) {
		s.broker = broker
	}
}

// WithHTTPMiddleware wraps the REST and RPC handlers, outermost first.
func WithHTTPMiddleware(middleware ...func(http.Handler) http.Handler) ServerOption {
	return func(s *A2AServer) {
		s.middleware = append(s.middleware, middleware...)
	}
}

func NewA2AServer(handler *RequestHandler, opts ...ServerOption) *A2AServer {
	server := &A2AServer{
		app: fiber.New(fiber.Config{
			AppName:           handler.AgentCard().Name,
			ServerHeader:      "A2A-Agent-Server",
			StreamRequestBody: true,
		}),
		handler: handler,
		rest:    NewRESTHandler(handler),
	}

	for _, opt := range opts {
		opt(server)
	}

	server.mount()

	return server
}

func (s *A2AServer) mount() {
	s.app.Use(logger.New(logger.Config{
		// Skip logging for the /events endpoint to reduce noise
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/events"
		},
	}))

	s.app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	s.app.Get(healthcheck.ReadinessEndpoint, healthcheck.New())

	s.app.Get("/", func(ctx fiber.Ctx) error {
		return ctx.SendString("OK")
	})

	s.app.Get("/.well-known/agent.json", func(ctx fiber.Ctx) error {
		payload, err := json.Marshal(s.handler.AgentCard())
		if err != nil {
			return err
		}
		ctx.Set("Content-Type", "application/json")
		return ctx.Send(payload)
	})

	if s.broker != nil {
		s.app.Get("/events", fiberadaptor.HTTPHandler(http.HandlerFunc(s.broker.Subscribe)))
	}

	if s.rpc != nil {
		s.app.Post("/rpc", fiberadaptor.HTTPHandler(s.wrap(s.rpc)))
	}

	s.app.Use("/v1", fiberadaptor.HTTPHandler(s.wrap(s.rest)))
}

func (s *A2AServer) wrap(handler http.Handler) http.Handler {
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler
}

// Listen serves until the listener fails or Shutdown runs.
func (s *A2AServer) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown drains connections and closes the firehose.
func (s *A2AServer) Shutdown(ctx context.Context) error {
	if s.broker != nil {
		s.broker.Close()
	}
	return s.app.ShutdownWithContext(ctx)
}
