package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/wealthflow-performance/internal/adapter/grpc"
	"github.com/simaogato/wealthflow-performance/internal/adapter/ingestion"
	"github.com/simaogato/wealthflow-performance/internal/adapter/metrics"
	"github.com/simaogato/wealthflow-performance/internal/adapter/repository/cache"
	"github.com/simaogato/wealthflow-performance/internal/adapter/repository/sqlstore"
	"github.com/simaogato/wealthflow-performance/internal/config"
	"github.com/simaogato/wealthflow-performance/internal/logging"
	"github.com/simaogato/wealthflow-performance/internal/usecase/calculation"
	"github.com/simaogato/wealthflow-performance/internal/usecase/poolcalc"
	"github.com/simaogato/wealthflow-performance/internal/usecase/scheduler"
	"github.com/simaogato/wealthflow-performance/internal/usecase/seeder"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Setup Database
	db, err := sqlstore.NewDB(sqlstore.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 2. Initialize Repositories
	recordRepo := sqlstore.NewRecordRepository(db)
	rowRepo := sqlstore.NewCalculationRepository(db)
	cursorRepo := sqlstore.NewCursorRepository(db)
	runLogRepo := sqlstore.NewRunLogRepository(db)
	fundRepo := sqlstore.NewFundRepository(db)
	benchmarkRepo := sqlstore.NewBenchmarkRepository(db)
	referenceCache := cache.NewReferenceCache(fundRepo, benchmarkRepo, cfg.Cache.TTL, log)

	ingestionClient := ingestion.NewFileClient(cfg.Ingestion.Dir, log)

	// 3. Seed reference data
	if cfg.Ingestion.SeedOnStart {
		referenceSeeder := seeder.NewReferenceSeeder(ingestionClient, fundRepo, benchmarkRepo, referenceCache, log)
		if _, err := referenceSeeder.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to seed reference data")
		}
	}

	// 4. Initialize Services (Use Cases)
	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "wealthflow")
	sched := scheduler.New(
		poolcalc.NewCalculator(cfg.Scheduler.StrictMetadata),
		rowRepo,
		scheduler.Options{
			Parallelism:   cfg.Scheduler.Parallelism,
			PollInterval:  cfg.Scheduler.PollInterval,
			HardStopAfter: cfg.Scheduler.HardStopAfter,
		},
		log,
		collector,
	)

	runService := calculation.NewRunService(ingestionClient, recordRepo, rowRepo, cursorRepo, runLogRepo, referenceCache, sched, log)
	if cfg.Audit.Path != "" {
		audit, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Audit.Path).Msg("failed to open audit log")
		}
		defer audit.Close()
		runService.Audit = audit
	}

	tableService := calculation.NewTableService(rowRepo, referenceCache, referenceCache, calculation.TableDefaults{
		Levels:             cfg.Table.Levels,
		AssetClassOrder:    cfg.Table.AssetClassOrder,
		SubAssetClassOrder: cfg.Table.SubAssetClassOrder,
		Horizons:           cfg.Table.Horizons,
	}, log)

	// 5. Start metrics endpoint
	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// 6. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(log),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken),
		),
		grpclib.ChainStreamInterceptor(
			grpcadapter.LoggingStreamInterceptor(log),
			grpcadapter.AuthStreamInterceptor(cfg.Server.APIToken),
		),
	)
	grpcadapter.RegisterPerformanceServiceServer(grpcServer, grpcadapter.NewServer(runService, tableService, runLogRepo, log))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped with error")
			stop()
		}
	}()

	if cfg.Ingestion.RunOnStart {
		go func() {
			summary, err := runService.Run(ctx, calculation.RunRequest{PerPoolCursor: cfg.Ingestion.PerPoolCursor}, nil)
			if err != nil {
				log.Error().Err(err).Msg("startup calculation run failed")
				return
			}
			log.Info().Str("run_id", summary.RunID.String()).Int("computed", summary.Computed).Msg("startup calculation run completed")
		}()
	}

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down gracefully")

	// Halt an active run so its workers stop before the database closes
	if runService.Running() {
		if err := runService.Cancel(uuid.Nil); err != nil {
			log.Warn().Err(err).Msg("failed to cancel active run")
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		grpcServer.Stop()
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	log.Info().Msg("gRPC server stopped")
}
