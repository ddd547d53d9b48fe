package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/api"
	"github.com/AaronLay10/lazysearch/internal/config"
	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/logger"
	"github.com/AaronLay10/lazysearch/internal/metrics"
	"github.com/AaronLay10/lazysearch/internal/mqtt"
	"github.com/AaronLay10/lazysearch/internal/search"
	"github.com/AaronLay10/lazysearch/internal/storage/postgres"
)

// ErrSearchFailed is returned when the run terminates with reason failed.
var ErrSearchFailed = errors.New("search failed")

type runFlags struct {
	configPath  string
	strategy    string
	runID       string
	parallelism int
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a search and print its solutions",
		Long: `Run a search described by a run.yaml file. Without --config the defaults
apply: A* on the 8-queens problem.

Solutions are printed as they are found. SIGINT and SIGTERM cancel the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel(), cfg.Logging.JSON)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := execute(ctx, cfg, cmd.OutOrStdout(), log)
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s finished: reason=%s solutions=%d\n", res.runID, res.reasonText(), res.solutions)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to run.yaml")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "override run.strategy")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "override run.id")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "override run.parallelism")
	return cmd
}

func loadConfig(f runFlags) (*config.RunConfig, error) {
	var (
		cfg *config.RunConfig
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadRunConfig(f.configPath)
	} else {
		cfg, err = config.ParseRunConfig([]byte("version: 1\n"))
	}
	if err != nil {
		return nil, err
	}

	if f.strategy != "" {
		cfg.Run.Strategy = f.strategy
	}
	if f.runID != "" {
		cfg.Run.ID = f.runID
	}
	if f.parallelism > 0 {
		cfg.Run.Parallelism = f.parallelism
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type result struct {
	runID     string
	reason    search.TerminationReason
	solutions int
}

// reasonText reports a run stopped at its solution limit as "limit".
func (r *result) reasonText() string {
	if r.reason == "" {
		return "limit"
	}
	return string(r.reason)
}

// execute runs cfg to termination, or until MaxSolutions solutions were
// printed to out. The journal, broker and monitor are optional; a run whose
// outputs are unavailable still completes.
func execute(ctx context.Context, cfg *config.RunConfig, out io.Writer, log *zap.Logger) (*result, error) {
	runID := cfg.Run.ID
	if runID == "" {
		runID = uuid.NewString()
	}
	strategy := cfg.Strategy()
	log = log.With(zap.String(logger.FieldRunID, runID), zap.String(logger.FieldStrategy, strategy))

	bus := events.NewBus(runID, cfg.EventBuffer(), logger.Component(log, "events"))
	collector := metrics.New(runID, strategy)
	progress := newTracker(runID, strategy, out)

	r, err := buildRun(cfg, runID, log)
	if err != nil {
		return nil, err
	}
	r.Subscribe(progress.Observe)
	r.Subscribe(bus.Observe)
	r.Subscribe(collector.Observe)
	stopCancel := context.AfterFunc(ctx, r.Cancel)
	defer stopCancel()

	var server *api.Server
	if cfg.Monitor.Enabled {
		auth, err := api.LoadAuth()
		if err != nil {
			return nil, err
		}
		alerter := api.NewAlerter(cfg.Monitor.AlertWebhook, runID, strategy, log)
		defer alerter.Wait()
		server = api.NewServer(api.Options{
			Address:  cfg.MonitorAddress(),
			Bus:      bus,
			Metrics:  collector.Registry(),
			Target:   r,
			Status:   progress.Status,
			Auth:     auth,
			TLS:      api.NewTLSConfig(cfg.Monitor.TLSCert, cfg.Monitor.TLSKey),
			Alerter:  alerter,
			Logger:   log,
			Strategy: strategy,
		})
	}

	journalUp := false
	if cfg.Postgres.Enabled {
		if client, err := openJournal(cfg, runID); err != nil {
			log.Warn("journal unavailable", zap.Error(err))
			bus.Emit("error", "system.error", "journal unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			defer client.Close()
			bus.SetJournal(client)
			journalUp = true
		}
	}

	mqttUp := false
	if cfg.MQTT.Enabled {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "searchd-" + runID
		}
		client := mqtt.NewClient(cfg.MQTT.URL, clientID, log)
		topics := mqtt.Topics{Prefix: cfg.MQTT.Prefix, RunID: runID}
		publisher := mqtt.NewEventPublisher(client, topics, log, search.EventNodeExpanded)
		bus.AddSink(publisher.Publish)
		mqttUp = client.Start(mqtt.NewControlSubscriber(client, topics, r, bus, log))
		defer client.Disconnect()
	}

	if server != nil {
		if err := server.Start(); err != nil {
			return nil, err
		}
		server.Readiness().SetJournal(journalUp, !cfg.Postgres.Enabled)
		server.Readiness().SetMQTT(mqttUp, !cfg.MQTT.Enabled)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("monitor shutdown failed", zap.Error(err))
			}
		}()
	}

	host, _ := os.Hostname()
	bus.Emit("info", "system.startup", "search run starting", map[string]interface{}{
		"service":  "searchd",
		"hostname": host,
		"pid":      os.Getpid(),
		"strategy": strategy,
	})
	log.Info("run starting", zap.Int(logger.FieldParallelism, cfg.Parallelism()))

	loopErr := drive(ctx, r, cfg.MaxSolutions(), progress, collector, server)

	reason, termErr := progress.Reason()
	progress.finish(reason)
	bus.Emit("info", "system.shutdown", "search run finished", map[string]interface{}{
		"reason":    string(reason),
		"solutions": progress.Solutions(),
	})
	log.Info("run finished", zap.String(logger.FieldReason, string(reason)), zap.Int(logger.FieldSolutions, progress.Solutions()))

	res := &result{runID: runID, reason: reason, solutions: progress.Solutions()}
	if loopErr != nil {
		return res, loopErr
	}
	if reason == search.ReasonFailed {
		return res, errors.Wrapf(ErrSearchFailed, "run %s: %v", runID, termErr)
	}
	return res, nil
}

// drive steps r until it terminates or limit solutions were seen.
func drive(ctx context.Context, r run, limit int, progress *tracker, collector *metrics.Collector, server *api.Server) error {
	for r.State() != search.StateTerminated {
		start := time.Now()
		ev, err := r.Step(ctx)
		collector.ObserveStep(time.Since(start))

		if server != nil && ev != nil && ev.Name() == search.EventInitialized {
			server.Readiness().SetSearchReady(true)
		}
		if err != nil && r.State() != search.StateTerminated {
			return err
		}
		if limit > 0 && progress.Solutions() >= limit {
			return nil
		}
	}
	return nil
}

func openJournal(cfg *config.RunConfig, runID string) (*postgres.Client, error) {
	password, err := config.Secret("", cfg.PasswordEnv())
	if err != nil {
		return nil, err
	}
	return postgres.New(postgres.Settings{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	}, runID, cfg.Strategy())
}
