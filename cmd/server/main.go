package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duo-chat/auth"
	grpcserver "duo-chat/infrastructure/grpc/server"
	"duo-chat/infrastructure/http/client"
	httpserver "duo-chat/infrastructure/http/server"
	"duo-chat/internal"
	"duo-chat/observability"
	"duo-chat/repositories"
	"duo-chat/services"
	"duo-chat/storage"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server
// failure. Deferred closes run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store
	tree, closeStore, err := openTree(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Services
	repository := repositories.NewChatRepository(tree, logger)
	chatService := services.NewChatService(logger, repository, config.MaxContentLength)
	verifier := auth.NewTokenVerifier(config.JwtSecretKey, config.AuthTokenDuration)
	identityClient := client.NewIdentityClient(logger, config.IdentityServiceURL, config.IdentityTimeout)
	gateway := auth.NewGateway(logger, verifier, identityClient)

	// 4. Servers
	errChan := make(chan error, 2)

	healthAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcHealthPort)
	listener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           httpserver.NewChatServer(logger, chatService, gateway, config.AllowedOrigins()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	monitor, err := observability.NewSelfMonitor()
	if err != nil {
		logger.Warn("Process stats unavailable", "error", err)
	}
	healthServer := grpcserver.NewHealthServer(logger, tree, monitor, config.HealthProbeInterval)
	go func() {
		logger.Info("Starting gRPC health server", "address", healthAddress)
		if err := healthServer.Serve(ctx, listener); err != nil {
			errChan <- err
		}
	}()

	// 5. Wait for Stop or Error
	var runErr error
	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
		logger.Error("Server failed, stopping the others", "error", runErr)
	}

	// 6. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	healthServer.Stop()
	logger.Info("Program stopped")

	return code, runErr
}

// openTree opens the configured backend and returns its close function.
func openTree(ctx context.Context, config internal.Config, logger *slog.Logger) (storage.Tree, func(), error) {
	switch config.StoreBackend {
	case internal.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
		}
		closeStore := func() {
			logger.Info("Closing Redis client...")
			_ = rdb.Close()
		}
		return storage.NewRedisTree(rdb, logger, config.RedisPrefix, repositories.Indexes...), closeStore, nil
	default:
		options := badger.DefaultOptions(config.BadgerFilepath)
		if logger.Enabled(ctx, slog.LevelDebug) {
			options = options.WithLoggingLevel(badger.DEBUG)
		} else {
			options = options.WithLoggingLevel(badger.WARNING)
		}
		db, err := badger.Open(options)
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			logger.Info("Debug Badger inspector available",
				"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			database.StartDebugServer(db, config.DebugPort, endpoint, NodeMapper)
		}
		closeStore := func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}
		return storage.NewBadgerTree(db, logger, repositories.Indexes...), closeStore, nil
	}
}

// NodeMapper renders stored nodes as JSON in the debug inspector. Index
// entries carry no value and keep the default row.
func NodeMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if len(val) == 0 {
		row.Type = "INDEX"
		return row
	}
	var node structpb.Struct
	if err := proto.Unmarshal(val, &node); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "NODE"
	row.Detail = protojson.Format(&node)
	return row
}
