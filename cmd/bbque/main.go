package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/config"
	"github.com/bbque/rtrm/pkg/eventloop"
	"github.com/bbque/rtrm/pkg/log"
	"github.com/bbque/rtrm/pkg/metrics"
	"github.com/bbque/rtrm/pkg/platform"
	"github.com/bbque/rtrm/pkg/proxy"
	"github.com/bbque/rtrm/pkg/recipe"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/sched"
	"github.com/bbque/rtrm/pkg/schedpol"
	"github.com/bbque/rtrm/pkg/sync"
)

// Version is stamped at build time; it is what --version prints and what
// the /health endpoint reports.
var Version = "0.1.0-dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bbque",
	Short:   "bbque - the run-time resource manager daemon",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Shorthand = "v"
	rootCmd.SetVersionTemplate(fmt.Sprintf("bbque version %s\n", Version))

	flags := rootCmd.Flags()
	flags.StringP("config", "c", config.DefaultPath, "configuration file")
	flags.StringP("plugins", "p", "", "plugin directory (default compiled-in)")
	flags.Int("tpd.clusters", 0, "synthetic platform cluster count (overrides config)")
	flags.Int("tpd.cmem", 0, "synthetic platform per-cluster memory in MB (overrides config)")
	flags.Int("tpd.pes", 0, "synthetic platform processing-elements per cluster (overrides config)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit JSON-structured logs instead of console output")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithComponent("main")

	configPath, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.Load(configPath, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if pluginsDir, _ := cmd.Flags().GetString("plugins"); pluginsDir != "" {
		cfg.PluginsDir = pluginsDir
	}
	if v, _ := cmd.Flags().GetInt("tpd.clusters"); v > 0 {
		cfg.TPD.Clusters = v
	}
	if v, _ := cmd.Flags().GetInt("tpd.cmem"); v > 0 {
		cfg.TPD.ClusterMemMB = v
	}
	if v, _ := cmd.Flags().GetInt("tpd.pes"); v > 0 {
		cfg.TPD.PEs = v
	}

	logger.Info().
		Str("config", configPath).
		Int("clusters", cfg.TPD.Clusters).
		Int("pes", cfg.TPD.PEs).
		Str("sched_policy", cfg.SchedulerManager.Policy).
		Msg("starting")

	accounter := res.NewAccounter(log.WithComponent("accounter"))
	if _, err := platform.Generate(accounter, platform.Options{
		Clusters:     cfg.TPD.Clusters,
		ClusterMemMB: uint64(cfg.TPD.ClusterMemMB),
		PEs:          cfg.TPD.PEs,
	}); err != nil {
		return fmt.Errorf("generating synthetic platform: %w", err)
	}
	metrics.RegisterComponent("accounter", true, "platform generated")

	loader := recipe.NewLoader(cfg.RLoader.XML.RecipeDir, accounter)
	apps := appmgr.NewManager(accounter, loader, app.DefaultLowestPriority)
	metrics.RegisterComponent("appmgr", true, "")

	policy, err := schedpol.ByName(cfg.SchedulerManager.Policy)
	if err != nil {
		return fmt.Errorf("selecting scheduling policy: %w", err)
	}

	// loop is wired as the proxy's notify target, but it can only be
	// constructed once the scheduler manager exists, and that needs the
	// proxy (through the sync manager); the closure below captures the
	// variable, not its zero value, so this forward reference resolves fine
	// once loop is assigned below.
	var loop *eventloop.Loop
	appProxy := proxy.NewProxy(apps, func() {
		if loop != nil {
			loop.NotifyEvent(eventloop.EXCStart)
		}
	})
	metrics.RegisterComponent("proxy", true, "listening")

	syncMgr := sync.NewManager(apps, accounter, appProxy, sync.DefaultPhaseTimeout)
	schedMgr := sched.NewManager(accounter, apps, policy, syncMgr, sched.DefaultPeriod)
	loop = eventloop.NewLoop(schedMgr, apps)

	metrics.SetVersion(Version)

	metricsAddr := cfg.Net.MetricsAddr
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	listener, err := net.Listen("tcp", cfg.Net.RPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Net.RPCAddr, err)
	}
	logger.Info().Str("addr", cfg.Net.RPCAddr).Msg("rpc endpoint listening")

	go acceptLoop(listener, appProxy, logger)

	schedMgr.Start()
	go loop.Run()

	// SIGUSR1/SIGUSR2 are user events (start/stop an EXC out of band);
	// SIGINT/SIGTERM request a clean shutdown; SIGQUIT is an immediate
	// abort, matching the daemon's BBQ_ABORT control-loop event.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			loop.NotifyEvent(eventloop.EXCStart)
			continue
		case syscall.SIGUSR2:
			loop.NotifyEvent(eventloop.EXCStop)
			continue
		case syscall.SIGQUIT:
			logger.Error().Msg("received SIGQUIT, aborting")
			loop.NotifyEvent(eventloop.BBQAbort)
		default:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		}
		break
	}

	schedMgr.Stop()
	_ = listener.Close()
	loop.NotifyEvent(eventloop.BBQExit)
	time.Sleep(100 * time.Millisecond)

	logger.Info().Msg("shutdown complete")
	return nil
}

// acceptLoop accepts EXC connections and hands each one off to its own
// proxy dispatcher goroutine, until the listener is closed.
func acceptLoop(listener net.Listener, appProxy *proxy.Proxy, logger zerolog.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Debug().Err(err).Msg("rpc listener closed")
			return
		}
		go appProxy.Serve(proxy.NewStreamTransport(conn))
	}
}
