package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lwm2m-node/lwm2m-go/pkg/admin"
	"github.com/lwm2m-node/lwm2m-go/pkg/client"
	"github.com/lwm2m-node/lwm2m-go/pkg/config"
	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/metrics"
	"github.com/lwm2m-node/lwm2m-go/pkg/transport/coap"
	"github.com/lwm2m-node/lwm2m-go/pkg/watch"
)

const shutdownTimeout = 5 * time.Second

var (
	serverHost  string
	serverPort  int
	nodeName    string
	adminListen string
	protocolLog string
	interactive bool
	watchConfig bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register with a server and serve the resource tree",
	Long: `Run the client node until interrupted.

Flags override the configuration file, which overrides the defaults.
Environment variables (LWM2M_NAME, LWM2M_SERVER_HOST, LWM2M_SERVER_PORT,
LWM2M_ADMIN_LISTEN) override the file as well.`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().StringVar(&serverHost, "server", "", "LWM2M server host")
	runCmd.Flags().IntVar(&serverPort, "port", 0, "LWM2M server port")
	runCmd.Flags().StringVar(&nodeName, "name", "", "Endpoint client name")
	runCmd.Flags().StringVar(&adminListen, "admin", "", "Admin HTTP listen address (empty disables)")
	runCmd.Flags().StringVar(&protocolLog, "protocol-log", "", "Write protocol events to this file")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start the interactive console")
	runCmd.Flags().BoolVar(&watchConfig, "watch", false, "Reload object values when the config file changes")

	rootCmd.AddCommand(runCmd)
}

func loadConfig() (*config.File, error) {
	if configFile == "" {
		f := config.Default()
		return f, f.Validate()
	}
	return config.Load(configFile)
}

func runNode(cmd *cobra.Command, args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}
	if serverHost != "" {
		f.Server.Host = serverHost
	}
	if serverPort != 0 {
		f.Server.Port = serverPort
	}
	if nodeName != "" {
		f.Client.Name = nodeName
	}
	if adminListen != "" {
		f.Admin.Listen = adminListen
	}
	if protocolLog != "" {
		f.Log.File = protocolLog
	}
	if debug {
		f.Log.Debug = true
	}
	if watchConfig && configFile == "" {
		return errors.New("--watch requires --config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console *Console
	var out io.Writer = os.Stderr
	if interactive {
		console, err = NewConsole()
		if err != nil {
			return err
		}
		out = console.Stdout()
	}
	logger := newLogger(out, f.Log.Debug)

	nodeCfg := f.NodeConfig()
	nodeCfg.Logger = logger
	if nodeCfg.Resolver, err = f.Resolver(); err != nil {
		return err
	}

	var plog log.Logger
	if f.Log.File != "" {
		fileLogger, err := log.NewFileLogger(f.Log.File)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fileLogger.Close()
		plog = fileLogger
	}
	if f.Log.Debug {
		plog = log.NewMultiLogger(plog, log.NewSlogAdapter(logger))
	}
	nodeCfg.ProtocolLogger = plog

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	nodeCfg.OnRequest = m.ObserveRequest

	t := coap.New(coap.Config{
		Endpoint:        nodeCfg.Name,
		ResponseTimeout: nodeCfg.RequestTimeout,
		Logger:          logger,
		ProtocolLogger:  plog,
	})

	node, err := client.NewNode(nodeCfg, t)
	if err != nil {
		return err
	}
	defer node.Close()

	if err := f.Objects.Apply(node.Tree()); err != nil {
		return err
	}
	m.Attach(node)
	node.OnEvent(eventLogger(logger))

	logger.Info("starting node",
		"name", nodeCfg.Name,
		"server", fmt.Sprintf("%s:%d", f.Server.Host, f.Server.Port),
		"lifetime", nodeCfg.Lifetime)

	if f.Server.Bootstrap {
		if _, err := node.Bootstrap(ctx, f.Server.Host, f.Server.Port); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	if _, err := node.Register(ctx, f.Server.Host, f.Server.Port); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if f.Admin.Listen != "" {
		srv := admin.New(node, admin.Config{Gatherer: reg, Logger: logger})
		g.Go(func() error {
			return srv.ListenAndServe(gctx, f.Admin.Listen)
		})
	}

	if watchConfig {
		w, err := watch.New(configFile, node.Tree(), logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if console != nil {
		g.Go(func() error {
			console.Run(gctx, node, stop)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if node.State() == client.StateRegistered {
		if _, derr := node.Deregister(shutdownCtx); derr != nil {
			logger.Warn("deregister failed", "error", derr)
		}
	}
	return err
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func eventLogger(logger *slog.Logger) client.EventHandler {
	return func(e client.Event) {
		switch e.Type {
		case client.EventRegistered:
			logger.Info("registered", "location", e.Location)
		case client.EventUpdated:
			logger.Debug("registration updated", "location", e.Location)
		case client.EventDeregistered:
			logger.Info("deregistered")
		case client.EventLogin:
			logger.Info("server login")
		case client.EventLogout:
			logger.Info("server logout")
		case client.EventOffline:
			logger.Warn("server connection lost")
		case client.EventReconnecting:
			logger.Info("reconnecting", "attempt", e.Attempt, "delay", e.Delay)
		case client.EventBootstrap:
			logger.Info("bootstrap requested")
		case client.EventAnnounce:
			logger.Info("announcement", "payload", string(e.Payload))
		case client.EventError:
			logger.Warn("background error", "error", e.Error, "code", e.Code.Dotted())
		}
	}
}
