package cmd

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	googlegrpc "google.golang.org/grpc"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/auth"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
	"github.com/agentmesh/a2a-core/pkg/jsonrpc"
	"github.com/agentmesh/a2a-core/pkg/metrics"
	"github.com/agentmesh/a2a-core/pkg/push"
	"github.com/agentmesh/a2a-core/pkg/service"
	"github.com/agentmesh/a2a-core/pkg/service/sse"
	"github.com/agentmesh/a2a-core/pkg/state"
	"github.com/agentmesh/a2a-core/pkg/stores"
	redisstore "github.com/agentmesh/a2a-core/pkg/stores/redis"
	s3store "github.com/agentmesh/a2a-core/pkg/stores/s3"
	grpctransport "github.com/agentmesh/a2a-core/pkg/transport/grpc"
)

var (
	addrFlag     string
	grpcAddrFlag string
	agentKeyFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve an A2A agent",
		Long:  longServe,
		RunE:  runServe,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&grpcAddrFlag, "grpc-addr", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().StringVarP(&agentKeyFlag, "agent", "n", "default", "Agent config key to serve")
}

// buildStores selects the task and push config backends from config.
func buildStores(ctx context.Context) (stores.TaskStore, stores.PushConfigStore, error) {
	v := viper.GetViper()

	switch backend := v.GetString("store.backend"); backend {
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: v.GetString("store.redis.addr")})

		opts := []redisstore.Option{redisstore.WithPrefix(v.GetString("store.redis.prefix"))}
		if ttl := v.GetDuration("store.redis.ttl"); ttl > 0 {
			opts = append(opts, redisstore.WithTTL(ttl))
		}

		return redisstore.NewTaskStore(client, opts...), redisstore.NewPushConfigStore(client, opts...), nil

	case "s3":
		conn, err := s3store.NewConn(s3store.ConnConfig{
			Endpoint:  v.GetString("store.s3.endpoint"),
			AccessKey: v.GetString("store.s3.access_key"),
			SecretKey: v.GetString("store.s3.secret_key"),
			UseSSL:    v.GetBool("store.s3.use_ssl"),
		})
		if err != nil {
			return nil, nil, err
		}

		bucket := v.GetString("store.s3.bucket")
		if err := conn.EnsureBucket(ctx, bucket); err != nil {
			return nil, nil, err
		}

		// Push configs stay in memory; only task records need the
		// durability of object storage.
		return s3store.NewStore(conn, bucket), stores.NewInMemoryPushConfigStore(), nil

	default:
		return stores.NewInMemoryTaskStore(), stores.NewInMemoryPushConfigStore(), nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := viper.GetViper()

	taskStore, pushConfigs, err := buildStores(ctx)
	if err != nil {
		return err
	}

	manager := state.NewTaskManager(taskStore)

	broker := sse.NewBroker()
	pipelineMetrics := metrics.NewPipelineMetrics()

	bus := eventqueue.NewMainEventBus(eventqueue.DefaultBusCapacity)
	queues := eventqueue.NewManager(bus,
		eventqueue.WithStateProvider(func(taskID string) bool {
			return manager.IsFinalized(context.Background(), taskID)
		}),
		eventqueue.WithEnqueueHook(func(item eventqueue.Item) {
			pipelineMetrics.RecordEnqueued()
		}),
	)
	brokerObserver := broker.Observer()
	metricsObserver := pipelineMetrics.Observer()

	processor := eventqueue.NewProcessor(bus, manager,
		eventqueue.WithPushNotifier(push.NewSender(pushConfigs)),
		eventqueue.WithObserver(func(taskID string, event a2a.Event) {
			metricsObserver(taskID, event)
			brokerObserver(taskID, event)
		}),
	)

	procCtx, stopProcessor := context.WithCancel(context.Background())
	defer stopProcessor()
	processor.Start(procCtx)

	card := a2a.NewAgentCardFromConfig(agentKeyFlag)
	handler := service.NewRequestHandler(*card, taskStore, pushConfigs, manager, queues, &service.EchoExecutor{})

	serverOpts := []service.ServerOption{
		service.WithRPCHandler(jsonrpc.NewServer(handler)),
	}
	if v.GetBool("server.firehose") {
		serverOpts = append(serverOpts, service.WithBroker(broker))
	}

	var authService *auth.Service
	if key := v.GetString("auth.signing_key"); key != "" {
		authService = auth.NewService([]byte(key))
		serverOpts = append(serverOpts, service.WithHTTPMiddleware(authService.Middleware))
	}

	server := service.NewA2AServer(handler, serverOpts...)

	addr := addrFlag
	if addr == "" {
		addr = v.GetString("server.addr")
	}

	grpcAddr := grpcAddrFlag
	if grpcAddr == "" {
		grpcAddr = v.GetString("server.grpc_addr")
	}

	errChan := make(chan error, 2)

	var grpcServer *googlegrpc.Server
	if grpcAddr != "" {
		listener, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}

		grpcServer = googlegrpc.NewServer()

		grpcOpts := []grpctransport.ServerOption{}
		if authService != nil {
			grpcOpts = append(grpcOpts, grpctransport.WithTokenVerifier(authService.VerifyToken))
		}
		grpctransport.NewServer(handler, grpcOpts...).Register(grpcServer)

		go func() {
			log.Info("gRPC listening", "addr", grpcAddr)
			errChan <- grpcServer.Serve(listener)
		}()
	}

	go func() {
		log.Info("HTTP listening", "addr", addr, "agent", card.Name)
		errChan <- server.Listen(addr)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

var longServe = `
Serve an A2A agent over HTTP (REST + JSON-RPC + SSE) and gRPC.

Examples:
  # Serve the default agent on the configured address
  a2a-core serve

  # Serve on a specific port with the redis store backend
  a2a-core serve --addr :8080
`
