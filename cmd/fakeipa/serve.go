package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/izzyreal/fakeipa/internal/agent"
	"github.com/izzyreal/fakeipa/internal/config"
	"github.com/izzyreal/fakeipa/internal/extensions"
	"github.com/izzyreal/fakeipa/internal/heartbeat"
	"github.com/izzyreal/fakeipa/internal/ironic"
	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/server"
	"github.com/izzyreal/fakeipa/internal/version"
)

const controllerTimeout = 60 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listenIP string
	var listenPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent API and heartbeat loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interface") {
				cfg.Listen.IP = listenIP
			}
			if cmd.Flags().Changed("port") {
				cfg.Listen.Port = listenPort
			}
			if root.logLevel != "" {
				cfg.Log.Level = root.logLevel
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&listenIP, "interface", "i", "", "IP address to listen on (default from config)")
	cmd.Flags().IntVarP(&listenPort, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

// loadConfig reads path when given; otherwise defaults and FAKE_IPA_*
// variables alone must yield a valid config.
func loadConfig(path string) (config.File, error) {
	if path == "" {
		return config.Parse(nil, "environment")
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg config.File) error {
	if err := logging.Configure(cfg.Log); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logging.New("main")

	httpc, err := ironic.NewHTTPClient(cfg.TLSOptions(), controllerTimeout)
	if err != nil {
		return fmt.Errorf("build controller client: %w", err)
	}

	scheduler := heartbeat.New(heartbeat.Options{Config: cfg.Heartbeat})
	fleet := agent.NewFleet(agent.Options{
		Settings:      cfg.AgentSettings(),
		Scheduler:     scheduler,
		HTTPClient:    httpc,
		RedfishClient: extensions.NewRedfishHTTPClient(),
	})
	defer fleet.Close()

	srv := server.New(fleet, scheduler, nil)

	log.WithField("version", version.Current()).
		WithField("listen", cfg.ListenAddr()).
		WithField("api_url", cfg.APIURL).
		Info("starting fake ironic-python-agent")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.ServerConfig()) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.WithError(err).Error("fakeipa stopped")
		return err
	}
	log.Info("fakeipa stopped")
	return nil
}
