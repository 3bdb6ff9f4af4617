// Package main initializes and starts the vault API server, setting up
// configuration, logging, database connections, repositories, realtime
// fan-out, snapshot storage, services, handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/mirrorx/vault/internal/certgen"
	"github.com/mirrorx/vault/internal/config"
	"github.com/mirrorx/vault/internal/db"
	"github.com/mirrorx/vault/internal/logger"
	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/realtime"
	"github.com/mirrorx/vault/internal/repository"
	"github.com/mirrorx/vault/internal/server/handler/http"
	"github.com/mirrorx/vault/internal/service"
	"github.com/mirrorx/vault/internal/storage"
	"github.com/mirrorx/vault/internal/token"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cannot init database: %w", err)
	}
	defer postgresDB.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Remove expired sessions and passcodes in the background.
	db.StartSessionCleaner(ctx, postgresDB.DB, options.CleanupInterval, zapLogger)

	// Change fan-out: in-process hub, optionally bridged through Redis.
	hub := realtime.NewHub(zapLogger)
	var publisher service.Publisher = hub
	if options.RedisAddr != "" {
		bus, err := realtime.NewRedisBus(ctx, options.RedisAddr, options.RedisChannel, zapLogger)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx, hub); err != nil {
			return err
		}
		publisher = bus
		zapLogger.Info("redis change bus enabled", zap.String("addr", options.RedisAddr))
	}

	// Snapshot storage is optional.
	var files storage.FileStorage
	if options.MinioEndpoint != "" {
		mc, err := storage.NewMinioClient(ctx, storage.MinioConfig{
			Endpoint:        options.MinioEndpoint,
			AccessKeyID:     options.MinioUser,
			SecretAccessKey: options.MinioPassword,
			UseSSL:          options.MinioSSL,
			BucketName:      options.MinioBucket,
		}, zapLogger)
		if err != nil {
			return err
		}
		files = mc
	}

	// Repositories.
	accountRepo := repository.NewPostgresAccountRepository(postgresDB)
	vaultRepo := repository.NewPostgresVaultRepository(postgresDB)
	operationRepo := repository.NewPostgresOperationRepository(postgresDB)
	personaRepo := repository.NewPostgresPersonaRepository(postgresDB)
	pipelineRepo := repository.NewPostgresPipelineRepository(postgresDB)
	resourceRepo := repository.NewPostgresResourceRepository(postgresDB)
	auditRepo := repository.NewPostgresAuditRepository(postgresDB)

	// Business-logic services.
	activityService := service.NewActivityService(auditRepo)
	deps := service.Deps{
		Tx:        repository.NewTransactor(postgresDB),
		Links:     repository.NewPostgresLinkRepository(postgresDB),
		Publisher: publisher,
		Listener:  hub,
		Audit:     activityService,
		Log:       zapLogger,
	}
	tokens := token.NewManager(options.JWTSecret, options.TokenTTL)
	authService := service.NewAuthService(accountRepo, tokens, service.LogCodeSender{Log: zapLogger}, deps)
	vaultService := service.NewVaultService(vaultRepo, deps)
	operationsService := service.NewOperationsService(operationRepo, deps)
	personasService := service.NewPersonasService(personaRepo, deps)
	pipelinesService := service.NewPipelinesService(pipelineRepo, deps)
	resourcesService := service.NewResourcesService(resourceRepo, deps)
	linkService := service.NewLinkService(deps)
	exportService := service.NewExportService(service.ExportSources{
		Vaults:     vaultRepo,
		Operations: operationsService,
		Personas:   personasService,
		Pipelines:  pipelinesService,
		Resources:  resourcesService,
	}, files, zapLogger)

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Auth:       &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Vaults:     &http.VaultHandler{VaultService: vaultService, Log: zapLogger},
		Operations: &http.RecordHandler[models.Operation, models.OperationPatch]{Service: operationsService, Log: zapLogger},
		Personas:   &http.RecordHandler[models.Persona, models.PersonaPatch]{Service: personasService, Log: zapLogger},
		Pipelines:  &http.RecordHandler[models.Pipeline, models.PipelinePatch]{Service: pipelinesService, Log: zapLogger},
		Resources:  &http.RecordHandler[models.Resource, models.ResourcePatch]{Service: resourcesService, Log: zapLogger},
		Steps:      &http.PipelineHandler{PipelineService: pipelinesService, Log: zapLogger},
		Links:      &http.LinkHandler{LinkService: linkService, Log: zapLogger},
		Activity:   &http.ActivityHandler{ActivityService: activityService, Log: zapLogger},
		Changes:    &http.ChangesHandler{Hub: hub, Log: zapLogger},
		Export:     &http.ExportHandler{ExportService: exportService, Log: zapLogger},
	}, authService, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with the server so change streams close on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		if options.TLSEnabled() {
			created, err := certgen.EnsureServerCertificate(options.TLSCertFile, options.TLSKeyFile, []string{"localhost", "127.0.0.1"})
			if err != nil {
				return fmt.Errorf("prepare TLS certificate: %w", err)
			}
			if created {
				zapLogger.Warn("generated self-signed TLS certificate", zap.String("cert", options.TLSCertFile))
			}
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
			err = server.ListenAndServeTLS(options.TLSCertFile, options.TLSKeyFile)
			if errors.Is(err, nethttp.ErrServerClosed) {
				return nil
			}
			return err
		}
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		if err := server.ListenAndServe(); !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		zapLogger.Info("shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
