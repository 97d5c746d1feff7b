package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openGDA/gda-core-sub061/internal/audit"
	"github.com/openGDA/gda-core-sub061/internal/auth"
	"github.com/openGDA/gda-core-sub061/internal/broadcast"
	"github.com/openGDA/gda-core-sub061/internal/config"
	"github.com/openGDA/gda-core-sub061/internal/interp"
	"github.com/openGDA/gda-core-sub061/internal/logger"
	"github.com/openGDA/gda-core-sub061/internal/pidfile"
	"github.com/openGDA/gda-core-sub061/internal/server"
	"github.com/openGDA/gda-core-sub061/internal/shell"
	"github.com/openGDA/gda-core-sub061/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	var (
		configPath  = flag.String("config", "", "path to JSON config file")
		sshPort     = flag.Int("ssh-port", -1, "SSH listen port, 0 to disable (overrides config)")
		telnetPort  = flag.Int("telnet-port", -1, "telnet listen port, 0 to disable (overrides config)")
		wsPort      = flag.Int("websocket-port", -1, "websocket listen port, 0 to disable (overrides config)")
		keysDir     = flag.String("keys-dir", "", "authorized-keys directory (overrides config)")
		interpreter = flag.String("interpreter", "", "interpreter command (overrides config)")
		logLevel    = flag.String("log-level", "", "debug, info, warn, error or none (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gdaserver %s\n", version.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *sshPort >= 0 {
		cfg.SSHPort = *sshPort
	}
	if *telnetPort >= 0 {
		cfg.TelnetPort = *telnetPort
	}
	if *wsPort >= 0 {
		cfg.WebsocketPort = *wsPort
	}
	if *keysDir != "" {
		cfg.KeysDir = *keysDir
	}
	if *interpreter != "" {
		cfg.Interpreter = *interpreter
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Global()
	defer func() {
		if err != nil {
			log.Error("fatal: %v", err)
		}
		if closeErr := log.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	log.Info("gdaserver %s starting", version.Version)

	if cfg.PidFile != "" {
		pid := pidfile.New(cfg.PidFile)
		if err := pid.Acquire(); err != nil {
			return err
		}
		defer pid.Release()
	}

	registry := broadcast.NewRegistry(log)
	scans := broadcast.NewScanFeed()

	var interpImpl interp.Interpreter
	if cfg.Interpreter != "" {
		py, err := interp.StartPython(cfg.Interpreter, registry.Output, log)
		if err != nil {
			return fmt.Errorf("failed to start interpreter %q: %w", cfg.Interpreter, err)
		}
		defer py.Close()
		interpImpl = py
	} else {
		log.Warn("no interpreter configured; statements are checked but not executed")
		interpImpl = interp.NewLocal(registry.Output)
	}

	history, err := shell.OpenFileHistory(cfg.HistoryFile)
	if err != nil {
		log.Warn("command history unavailable: %v", err)
	} else {
		defer history.Close()
	}

	keys := auth.NewKeyStore(cfg.KeysDir, cfg.Beamline, log)
	defer keys.Close()
	if cfg.WatchKeys && !keys.Permissive() {
		if err := keys.WatchKeys(); err != nil {
			log.Warn("key file watching unavailable: %v", err)
		}
	}

	var translate interp.Translator
	if len(cfg.Aliases)+len(cfg.VarargAliases) > 0 {
		tr := interp.NewAliasTranslator()
		tr.Alias(cfg.Aliases...)
		tr.AliasVararg(cfg.VarargAliases...)
		translate = tr.Translate
	}

	var auditStore *audit.Store
	if cfg.AuditDB != "" {
		auditStore, err = audit.Open(cfg.AuditDB, log)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer auditStore.Close()
	}

	deps := &server.Deps{
		Interp:      interpImpl,
		Registry:    registry,
		Scans:       scans,
		Audit:       auditStore,
		Translator:  translate,
		Version:     version.Version,
		Log:         log,
		ReadTimeout: time.Duration(cfg.ReadTimeout),
	}
	if history != nil {
		deps.History = history
	}

	var listeners []server.Listener
	if cfg.SSHPort > 0 {
		listeners = append(listeners, server.NewSSHListener(cfg.SSHPort, cfg.HostKeyPath, keys, deps))
	}
	if cfg.TelnetPort > 0 {
		listeners = append(listeners, server.NewTelnetListener(cfg.TelnetPort, keys, deps))
	}
	if cfg.WebsocketPort > 0 {
		listeners = append(listeners, server.NewWebsocketListener(cfg.WebsocketPort, keys, deps))
	}
	if len(listeners) == 0 {
		return fmt.Errorf("no listeners enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := server.NewSupervisor(log, listeners...)
	if sup.Start(ctx) == 0 {
		return fmt.Errorf("no listener could start")
	}
	defer sup.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.Info("received %v, shutting down", s)
	cancel()
	return nil
}
