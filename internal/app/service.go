package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"monitoring/internal/actions"
	"monitoring/internal/clock"
	"monitoring/internal/config"
	"monitoring/internal/dispatchq"
	"monitoring/internal/ingest"
	"monitoring/internal/lifecycle"
	"monitoring/internal/logging"
	"monitoring/internal/monitor"
	"monitoring/internal/notify"
	"monitoring/internal/state"
)

// alertAdminPrefix mounts operator transition endpoints.
const alertAdminPrefix = "/alerts/"

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable monitoring service.
type Service struct {
	source      config.ConfigSource
	cfg         config.Config
	logger      *slog.Logger
	closeLog    func()
	store       state.Store
	manager     *lifecycle.Manager
	mon         *monitor.Monitor
	httpSrv     *http.Server
	natsSub     interface{ Close() error }
	dispatchPub dispatchq.Producer
	dispatchWrk interface{ Close() error }
	readyFlag   atomic.Bool
	clock       clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, logger)
	runner := actions.NewRunner(cfg.Actions, clk, logger)
	manager := lifecycle.NewManager(store, nil, dispatcher, runner, clk, logger, cfg.Rule)

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    store,
		manager:  manager,
		clock:    clk,
	}

	if err := service.buildDispatchQueue(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.mon = monitor.New(
		cfg.Service, cfg.Analysis, manager, store,
		service.dispatchPub, dispatcher.Channels(), clk, logger,
	)

	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Monitor exposes the evaluation coordinator, mainly for tests.
// Params: none.
// Returns: owned monitor.
func (s *Service) Monitor() *monitor.Monitor {
	return s.mon
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startTicker(shutdownCtx, s.cfg.Service.CheckIntervalSec, func() {
		if _, ran := s.mon.RunChecks(shutdownCtx); !ran {
			s.logger.Debug("check tick skipped, pass in flight")
		}
	})
	s.startTicker(shutdownCtx, s.cfg.Service.EscalationIntervalSec, func() {
		if _, ran := s.mon.RunEscalations(shutdownCtx); !ran {
			s.logger.Debug("escalation tick skipped, pass in flight")
		}
	})
	s.startTicker(shutdownCtx, s.cfg.Service.AnalysisIntervalSec, func() {
		if _, ran := s.mon.RunAnalysis(shutdownCtx); !ran {
			s.logger.Debug("analysis tick skipped, pass in flight")
		}
	})
	s.startTicker(shutdownCtx, s.cfg.Service.SuppressionScanSec, func() {
		s.mon.RunSuppressionScan(shutdownCtx)
	})
	if s.cfg.Service.ReloadEnabled {
		s.startTicker(shutdownCtx, s.cfg.Service.ReloadIntervalSec, func() {
			if err := s.reloadConfig(); err != nil {
				s.logger.Error("reload failed", "error", err.Error())
			}
		})
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// startTicker runs one periodic task until shutdown.
// Params: shutdown context, interval in seconds, and task.
// Returns: nothing; non-positive intervals disable the ticker.
func (s *Service) startTicker(ctx context.Context, intervalSec int, task func()) {
	if intervalSec <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.dispatchWrk != nil {
		if err := s.dispatchWrk.Close(); err != nil {
			s.logger.Error("dispatch worker close failed", "error", err.Error())
			markErr(fmt.Errorf("dispatch worker close: %w", err))
		}
	}
	if s.dispatchPub != nil && !sameCloser(s.dispatchPub, s.dispatchWrk) {
		if err := s.dispatchPub.Close(); err != nil {
			s.logger.Error("dispatch producer close failed", "error", err.Error())
			markErr(fmt.Errorf("dispatch producer close: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// sameCloser reports whether producer and worker are one object.
// The in-process queue serves both roles and must close once.
// Params: producer and worker handles.
// Returns: true for identical dynamic values.
func sameCloser(producer dispatchq.Producer, worker interface{ Close() error }) bool {
	return any(producer) == any(worker)
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.dispatchWrk != nil {
		_ = s.dispatchWrk.Close()
		s.dispatchWrk = nil
	}
	if s.dispatchPub != nil && !sameCloser(s.dispatchPub, s.dispatchWrk) {
		_ = s.dispatchPub.Close()
	}
	s.dispatchPub = nil
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires router with ingest, admin, and health endpoints.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})

	if s.cfg.Ingest.HTTP.Enabled {
		mux.Handle(s.cfg.Ingest.HTTP.SnapshotPath, ingest.NewSnapshotHandler(s.mon, s.cfg.Ingest.HTTP.MaxBodyBytes))
	}
	mux.Handle(s.cfg.Ingest.HTTP.TriggerPath, ingest.NewTriggerHandler(s.mon))
	mux.Handle(alertAdminPrefix, ingest.NewAlertAdminHandler(alertAdminPrefix, s.manager))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildNATSSubscriber starts NATS snapshot ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if isSingleMode(s.cfg) || !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.mon, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildDispatchQueue wires the async dispatch pipeline.
// NATS mode with queue enabled uses the JetStream work queue; single
// mode and disabled-queue setups fall back to the in-process pool so
// fan-out stays fire-and-forget either way.
// Params: none.
// Returns: setup error.
func (s *Service) buildDispatchQueue() error {
	handler := func(ctx context.Context, job dispatchq.Job) error {
		return s.manager.ProcessJob(ctx, job)
	}

	if isSingleMode(s.cfg) || !s.cfg.Notify.Queue.Enabled {
		queue := dispatchq.NewInProcQueue(int(s.cfg.Notify.Queue.MaxAckPending), 2, s.logger, handler)
		s.dispatchPub = queue
		s.dispatchWrk = queue
		s.manager.SetProducer(queue)
		return nil
	}

	producer, err := dispatchq.NewNATSProducer(s.cfg.Notify.Queue)
	if err != nil {
		return err
	}
	worker, err := dispatchq.NewNATSWorker(s.cfg.Notify.Queue, s.logger, handler)
	if err != nil {
		_ = producer.Close()
		return err
	}
	s.dispatchPub = producer
	s.dispatchWrk = worker
	s.manager.SetProducer(producer)
	return nil
}

// reloadConfig reloads rules and notification settings in place and
// resolves instances orphaned by removed rules.
// The transport layer (queue, state backend, HTTP listener) is fixed
// for the process lifetime; a mode or listener change needs a restart.
// Params: none.
// Returns: reload or validation error.
func (s *Service) reloadConfig() error {
	nextCfg, err := config.LoadSnapshot(s.source)
	if err != nil {
		return err
	}
	if isSingleMode(nextCfg) != isSingleMode(s.cfg) {
		return fmt.Errorf("service.mode change requires restart")
	}

	s.manager.SetRules(nextCfg.Rule)
	s.manager.SetDispatcher(notify.NewDispatcher(nextCfg.Notify, s.logger))
	s.cfg.Rule = nextCfg.Rule
	s.cfg.Notify = nextCfg.Notify

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cleaned := s.manager.CleanupRemovedRules(cleanupCtx)

	s.logger.Info("configuration reloaded", "rules", len(nextCfg.Rule), "orphans_resolved", cleaned)
	return nil
}

// buildStore creates runtime state backend from config.
// Params: root config snapshot.
// Returns: selected store backend.
func buildStore(cfg config.Config) (state.Store, error) {
	if isSingleMode(cfg) {
		return state.NewMemoryStore(), nil
	}
	return state.NewNATSStore(config.DeriveStateNATSConfig(cfg))
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
