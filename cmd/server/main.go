package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/cartridge/prioritized-replay/internal/checkpoint"
	"github.com/cartridge/prioritized-replay/internal/config"
	adminhttp "github.com/cartridge/prioritized-replay/internal/http"
	"github.com/cartridge/prioritized-replay/internal/metrics"
	"github.com/cartridge/prioritized-replay/internal/service"
	"github.com/cartridge/prioritized-replay/internal/storage"
	replayv1 "github.com/cartridge/prioritized-replay/pkg/proto/replay/v1"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "replay-server",
	Short: "Prioritized experience replay service",
	Long: `Replay service that stores agent transitions in a fixed-capacity
prioritized buffer and serves importance-weighted training batches.

Every flag can also be set through a REPLAY_* environment variable,
e.g. REPLAY_CAPACITY=500000.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "replay").Logger()
	collector := metrics.NewCollector(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create storage backend
	backend, err := storage.NewMemoryBackend(cfg.BufferOptions())
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing backend")
		}
	}()

	// Restore the previous run before accepting traffic
	store, err := checkpoint.NewStore(cfg.CheckpointBackend, cfg.CheckpointPath)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init checkpoint store: %w", err)
		}
		defer store.Close()
	}
	checkpoints := checkpoint.NewManager(store, backend, cfg.CheckpointID, logger, collector)
	if _, err := checkpoints.Restore(ctx); err != nil {
		return err
	}

	logger.Info().
		Int("capacity", cfg.Capacity).
		Ints("state_shape", cfg.StateShape).
		Int("nstep", cfg.NStep).
		Float64("alpha", cfg.Alpha).
		Bool("uniform", cfg.Uniform).
		Str("checkpoint_backend", cfg.CheckpointBackend).
		Str("checkpoint_id", checkpoints.ID()).
		Msg("Starting Replay service")

	// Create gRPC server
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(service.LoggingInterceptor(logger, collector)),
	)
	replayv1.RegisterReplayServer(server, service.NewReplayService(backend, cfg.BetaSchedule(), logger, collector))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("Replay service listening")
		if err := server.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var admin *http.Server
	if cfg.HTTPAddr != "" {
		admin = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: adminhttp.NewServer(backend, checkpoints, logger, collector).Routes(),
		}
		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("Admin server listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	go checkpoints.Run(ctx, cfg.CheckpointInterval)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down gracefully...")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Admin server shutdown failed")
		}
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		server.Stop()
	case <-stopped:
		logger.Info().Msg("Server stopped gracefully")
	}

	if checkpoints.Enabled() {
		if _, err := checkpoints.Save(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Final checkpoint failed")
		}
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
