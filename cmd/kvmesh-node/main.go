// cmd/kvmesh-node is the main entrypoint for a single cache node.
//
// Configuration is almost entirely positional/environment, mirroring the
// container-native deployment model: every node in the cluster runs the
// identical image, told apart only by its own address.
//
// Example — Docker Compose style, a fixed three-node cluster:
//
//	./kvmesh-node node1:50051
//	./kvmesh-node node2:50052
//	./kvmesh-node node3:50053
//
// Example — Kubernetes StatefulSet style, peers computed from the pod's
// own hostname:
//
//	./kvmesh-node cache-node-0.cache-service:50051
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaranSinghDev/kvmesh/internal/config"
	"github.com/KaranSinghDev/kvmesh/internal/coordinator"
	"github.com/KaranSinghDev/kvmesh/internal/legacy"
	"github.com/KaranSinghDev/kvmesh/internal/peers"
	"github.com/KaranSinghDev/kvmesh/internal/persistence"
	"github.com/KaranSinghDev/kvmesh/internal/ring"
	"github.com/KaranSinghDev/kvmesh/internal/rpc"
	"github.com/KaranSinghDev/kvmesh/internal/store"
)

var (
	legacyBaseURL string
	legacyTimeout time.Duration
	postgresDSN   string
	healthPort    int
	replicationN  int
	virtualNodes  int
)

func main() {
	root := &cobra.Command{
		Use:   "kvmesh-node <address>",
		Short: "Run one cache node of the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}

	root.Flags().StringVar(&legacyBaseURL, "legacy-url", os.Getenv("KVMESH_LEGACY_URL"),
		"base URL of the legacy key service (empty disables fallback)")
	root.Flags().DurationVar(&legacyTimeout, "legacy-timeout", config.DefaultLegacyTimeout,
		"timeout for legacy fallback requests")
	root.Flags().StringVar(&postgresDSN, "postgres-dsn", os.Getenv("KVMESH_POSTGRES_DSN"),
		"Postgres DSN for write-through persistence (empty disables it)")
	root.Flags().IntVar(&healthPort, "health-port", 8080, "port for /healthz and /readyz")
	root.Flags().IntVar(&replicationN, "replicas", config.DefaultReplicationFactor, "replication factor")
	root.Flags().IntVar(&virtualNodes, "vnodes", config.DefaultVirtualNodes, "virtual ring positions per node")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// peerPoolAdapter narrows *peers.Pool's concrete *peers.Stub return to the
// coordinator.PeerStub interface the engine depends on.
type peerPoolAdapter struct {
	pool *peers.Pool
}

func (a peerPoolAdapter) StubFor(addr string) coordinator.PeerStub {
	return a.pool.StubFor(addr)
}

func run(selfAddress string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg := config.WithDefaults(config.Config{
		SelfAddress:       selfAddress,
		ReplicationFactor: replicationN,
		VirtualNodes:      virtualNodes,
		LegacyBaseURL:     legacyBaseURL,
		LegacyTimeout:     legacyTimeout,
		PostgresDSN:       postgresDSN,
		HealthPort:        healthPort,
	})
	cfg.Peers = config.DiscoverPeers(cfg.SelfAddress, cfg.ReplicationFactor)

	logger.Info("starting node",
		zap.String("self", cfg.SelfAddress),
		zap.Strings("peers", cfg.Peers),
		zap.Int("replication_factor", cfg.ReplicationFactor),
	)

	r := ring.New(cfg.Peers, cfg.VirtualNodes)
	local := store.New()
	pool := peers.NewPool(5 * time.Second)

	var legacyClient coordinator.LegacyClient
	if cfg.LegacyBaseURL != "" {
		legacyClient = legacy.New(cfg.LegacyBaseURL, cfg.LegacyTimeout, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	writer := persistence.New(ctx, cfg.PostgresDSN, logger)
	cancel()
	defer writer.Close()

	engine := coordinator.New(cfg.SelfAddress, cfg.ReplicationFactor, r, local,
		peerPoolAdapter{pool: pool}, legacyClient, writer, logger)

	gin.SetMode(gin.ReleaseMode)

	rpcEngine := gin.New()
	rpc.NewRouter(engine, logger).Register(rpcEngine)

	healthEngine := gin.New()
	rpc.RegisterHealth(healthEngine)

	rpcSrv := &http.Server{
		Addr:         "0.0.0.0:" + config.BindPort(cfg.SelfAddress),
		Handler:      rpcEngine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	healthSrv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.HealthPort),
		Handler:      healthEngine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("rpc listener up", zap.String("addr", rpcSrv.Addr))
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("rpc server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("health listener up", zap.String("addr", healthSrv.Addr))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("health server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", zap.String("self", cfg.SelfAddress))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc server shutdown error", zap.Error(err))
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", zap.Error(err))
	}
	return nil
}
