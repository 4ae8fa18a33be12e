// Command server wires the execution platform together: configuration,
// structured logging, the ledger/backtest/optimization databases, the
// broker and strategy registries, the execution engine, and the
// maintenance scheduler, then runs until a termination signal is received.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/archive"
	"github.com/aristath/sentinel/internal/backtest"
	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/broker/paper"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/database"
	"github.com/aristath/sentinel/internal/engine"
	"github.com/aristath/sentinel/internal/events"
	"github.com/aristath/sentinel/internal/killswitch"
	"github.com/aristath/sentinel/internal/maintenance"
	"github.com/aristath/sentinel/internal/optimize"
	"github.com/aristath/sentinel/internal/strategy"
	"github.com/aristath/sentinel/pkg/logger"
)

func main() {
	dataDirFlag := flag.String("data-dir", "", "override the data directory")
	flag.Parse()

	cfg, err := config.Load(*dataDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("open ledger db: %w", err)
	}
	defer ledgerDB.Close()
	if err := ledgerDB.Migrate(); err != nil {
		return fmt.Errorf("migrate ledger db: %w", err)
	}

	backtestDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "backtest.db"),
		Profile: database.ProfileStandard,
		Name:    "backtest",
	})
	if err != nil {
		return fmt.Errorf("open backtest db: %w", err)
	}
	defer backtestDB.Close()
	if err := backtestDB.Migrate(); err != nil {
		return fmt.Errorf("migrate backtest db: %w", err)
	}

	optimizationDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "optimization.db"),
		Profile: database.ProfileStandard,
		Name:    "optimization",
	})
	if err != nil {
		return fmt.Errorf("open optimization db: %w", err)
	}
	defer optimizationDB.Close()
	if err := optimizationDB.Migrate(); err != nil {
		return fmt.Errorf("migrate optimization db: %w", err)
	}

	strategyRegistry := strategy.NewRegistry()
	strategyRegistry.Register("moving_average_crossover", strategy.NewMovingAverageCrossover)
	strategyRegistry.Register("sma_rsi_crossover", strategy.NewSMARSICrossover)

	brokerRegistry := broker.NewRegistry(cfg.BrokerPluginsDir, log)
	brokerRegistry.RegisterBroker("paper", paper.New, broker.DefaultManifest("paper", "Paper Trading", "1.0.0"))
	if err := brokerRegistry.DiscoverPlugins(); err != nil {
		log.Warn().Err(err).Msg("broker plugin discovery failed, continuing with built-in brokers only")
	}

	bus := events.NewBus()
	eventManager := events.NewManager(bus, log)
	killSwitch := killswitch.New(eventManager)

	paperBroker, _ := brokerRegistry.New("paper")
	execEngine := engine.New(paperBroker, ledgerDB, strategyRegistry, killSwitch, eventManager, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	execEngine.Start(ctx)
	defer execEngine.Stop(context.Background())

	backtestEngine := backtest.New(cfg.DefaultSlippagePercent, cfg.DefaultCommission)
	_ = backtest.NewStore(backtestDB)
	_ = optimize.New(backtestEngine, strategyRegistry, rand.New(rand.NewSource(time.Now().UnixNano())))
	_ = optimize.NewStore(optimizationDB)

	scheduler := maintenance.New(log)
	databases := map[string]*database.DB{
		"ledger":       ledgerDB,
		"backtest":     backtestDB,
		"optimization": optimizationDB,
	}
	if err := scheduler.AddJob(cfg.MaintenanceDailySchedule, maintenance.NewDailyJob(databases, cfg.DataDir, cfg.MinFreeDiskGB, cfg.CriticalFreeDiskGB, log)); err != nil {
		return fmt.Errorf("register daily maintenance job: %w", err)
	}
	ephemeralDatabases := map[string]*database.DB{
		"backtest":     backtestDB,
		"optimization": optimizationDB,
	}
	if err := scheduler.AddJob(cfg.MaintenanceWeeklySchedule, maintenance.NewWeeklyJob(ephemeralDatabases, log)); err != nil {
		return fmt.Errorf("register weekly maintenance job: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Archive.Enabled {
		archiveClient, err := archive.NewClient(ctx, archive.ClientConfig{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			Bucket:          cfg.Archive.Bucket,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("archive client unavailable, run artifacts will not be uploaded")
		} else {
			_ = archive.NewArchiver(archiveClient, log)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("server started")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
