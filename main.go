package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"cryomon/alert"
	"cryomon/config"
	"cryomon/logdata"
	"cryomon/logger"
	"cryomon/models"
	"cryomon/monitor"
	"cryomon/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service configuration")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	rootLogger := logger.InitZap()
	lg := rootLogger.Named("main")
	// The logger may be rebuilt with a file sink below; sync whichever
	// instance is current at exit.
	defer func() { _ = rootLogger.Sync() }()
	lg.Info("Cryostat monitor starting…")

	cfg, err := config.Load(*configPath)
	if err != nil {
		lg.Fatal("Failed to load configuration", zap.String("path", *configPath), zap.Error(err))
	}
	if cfg.Logging.LogFile != "" {
		rootLogger = logger.InitZap(cfg.Logging.LogFile)
		lg = rootLogger.Named("main")
	}
	lg.Info("Configuration loaded", zap.String("path", *configPath))

	mgr, err := logdata.NewManager(cfg, rootLogger.Named("logdata"))
	if err != nil {
		lg.Fatal("Failed to open log root", zap.String("log_path", cfg.LogPath), zap.Error(err))
	}

	reg := monitor.NewRegistry(cfg.SubchannelDelimiter, rootLogger.Named("monitor"))
	if cfg.MonitorFile != "" {
		saved, err := monitor.LoadFile(cfg.MonitorFile)
		if err != nil {
			lg.Warn("Could not load saved monitors", zap.Error(err))
		} else if len(saved) > 0 {
			count := reg.Import(saved)
			lg.Info("Saved monitors restored", zap.Int("count", count))
		}
	}

	mailer := alert.NewMailer(cfg.Mail, rootLogger.Named("mailer"))
	srv := web.NewServer(cfg, mgr, reg, mailer, rootLogger.Named("web"))

	changes := mgr.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); mgr.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); srv.Run(ctx) }()
	wg.Add(1)
	go func() {
		defer wg.Done()
		evaluate(ctx, changes, reg, mgr, mailer, lg)
	}()

	<-stop
	lg.Info("Stop signal received, shutting down")
	cancel()
	mgr.Unsubscribe(changes)
	wg.Wait()
	lg.Info("Cryostat monitor stopped")
}

// evaluate consumes emitted change-sets, checks the monitor registry and
// dispatches an alert when at least one rule fired. Dispatch failures
// stay inside the mailer; nothing here may take down ingestion.
func evaluate(ctx context.Context, changes chan models.ChangeSet, reg *monitor.Registry,
	mgr *logdata.Manager, mailer *alert.Mailer, lg *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cs, ok := <-changes:
			if !ok {
				return
			}
			results := reg.Evaluate(cs)
			triggered := monitor.WhichTriggered(results)
			if len(triggered) == 0 {
				continue
			}
			details := reg.DescribeTriggered(cs, triggered)
			lg.Info("Alerts triggered", zap.Int("count", len(triggered)))
			mailer.SendAlert(details, mgr.CurrentStatus())
		}
	}
}
