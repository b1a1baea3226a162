package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"wgwatchdog/internal/clock"
	"wgwatchdog/internal/config"
	"wgwatchdog/internal/execx"
	"wgwatchdog/internal/journal"
	"wgwatchdog/internal/logging"
	"wgwatchdog/internal/model"
	"wgwatchdog/internal/privilege"
	"wgwatchdog/internal/probe"
	"wgwatchdog/internal/store"
	"wgwatchdog/internal/watchdog"
	"wgwatchdog/internal/wireguard"
)

const usage = `wg-watchdog - restart a WireGuard tunnel whose handshake went stale

Usage:
  wg-watchdog [flags] [iface]          run one check (default iface: wg0)
  wg-watchdog status [flags] [iface]   show peer, cooldown and journal state

Flags:
  --config <path>      YAML config file
  --env-file <path>    dotenv file, may be repeated
  --force              force-restart mode (cooldown based, no probing)
  --state-dir <dir>    restart record directory (default /run/wg-watchdog)
  --log-level <level>  debug|info|warn|error
  --dry-run            decide and log, never restart or write state

Environment:
  HANDSHAKE_THRESHOLD=15  PING_TIMEOUT=2  PING_COUNT=1  FORCE_RESTART=false
  RESTART_INTERVAL=30     STATE_DIR  STATE_LOCK  STATUS_BACKEND=wgctrl|wg
  RESTART_METHOD=systemd|wg-quick  SERVICE_UNIT=wg-quick@%s  JOURNAL_PATH
  STUN_SERVERS  LOG_LEVEL  LOG_FORMAT=text|json
`

const (
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	configPath string
	envFiles   []string
	force      bool
	stateDir   string
	logLevel   string
	dryRun     bool
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			fmt.Printf("%s", usage)
			return
		case "status":
			handleStatus(args[1:])
			return
		}
	}
	handleRun(args)
}

func handleRun(args []string) {
	opts, cfg := loadConfig("wg-watchdog", args)
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signalContext()
	defer cancel()

	runner := execx.NewOSRunner(nil, nil)
	mgr := wireguard.NewManager(runner, cfg.RestartMethod, cfg.ServiceUnit)
	status, closeStatus, err := statusQuerier(cfg, mgr)
	if err != nil {
		fatal(logger, cfg, err)
	}
	defer closeStatus()

	deps := watchdog.Deps{
		Status:    status,
		Prober:    probe.NewPinger(runner),
		Restarter: mgr,
		Store:     store.NewFileStore(cfg.StateDir),
		Clock:     clock.Real(),
		Links:     wireguard.NewLinks(),
		Privilege: privilege.Check,
		Logger:    logger,
	}
	if cfg.JournalPath != "" && !opts.dryRun {
		deps.Journal = func(rec model.RunRecord) error {
			return journal.Append(cfg.JournalPath, []model.RunRecord{rec})
		}
	}

	if _, err := watchdog.New(cfg, deps, opts.dryRun).Run(ctx); err != nil {
		closeStatus()
		fatal(logger, cfg, err)
	}
}

// loadConfig parses flags and builds the run's immutable Config, exiting
// with a usage status on any error.
func loadConfig(name string, args []string) (options, config.Config) {
	var opts options
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML config")
	fs.StringArrayVar(&opts.envFiles, "env-file", nil, "dotenv file")
	fs.BoolVar(&opts.force, "force", false, "force-restart mode")
	fs.StringVar(&opts.stateDir, "state-dir", "", "restart record directory")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "never restart or write state")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Printf("%s", usage)
			os.Exit(0)
		}
		usageError(err)
	}
	if fs.NArg() > 1 {
		usageError(fmt.Errorf("expected at most one interface, got %v", fs.Args()))
	}

	cfg, err := config.Load(config.Sources{
		File:     opts.configPath,
		EnvFiles: opts.envFiles,
		Lookup:   os.LookupEnv,
	})
	if err != nil {
		usageError(err)
	}
	if fs.Changed("force") {
		cfg.ForceRestart = opts.force
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if fs.NArg() == 1 {
		cfg.Interface = fs.Arg(0)
	}
	if err := config.Validate(cfg); err != nil {
		usageError(err)
	}
	return opts, cfg
}

func statusQuerier(cfg config.Config, mgr *wireguard.Manager) (watchdog.StatusQuerier, func(), error) {
	if cfg.StatusBackend == config.BackendWg {
		return mgr, func() {}, nil
	}
	client, err := wireguard.NewClient()
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func usageError(err error) {
	fmt.Fprintf(os.Stderr, "wg-watchdog: %v\n\n%s", err, usage)
	os.Exit(exitUsage)
}

func fatal(logger *logrus.Logger, cfg config.Config, err error) {
	if err == nil {
		return
	}
	logger.WithError(err).WithField("iface", cfg.Interface).Error("watchdog run failed")
	os.Exit(exitFailure)
}
