package main

import (
	"context"
	"os"

	"github.com/omnect/twin-agent/pkg/adu"
	"github.com/omnect/twin-agent/pkg/config"
	"github.com/omnect/twin-agent/pkg/iothub"
	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/omnect/twin-agent/pkg/marker"
	"github.com/omnect/twin-agent/pkg/metrics"
	"github.com/omnect/twin-agent/pkg/platform"
	"github.com/omnect/twin-agent/pkg/platform/system"
	"github.com/omnect/twin-agent/pkg/twin"
	"github.com/omnect/twin-agent/pkg/watchdog"
	"github.com/omnect/twin-agent/pkg/workgroup"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "twin-agent",
		Usage:   "keep the device twin in sync with the device",
		Version: marker.ModuleVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: config.DefaultPath,
				Usage: "agent configuration `FILE`, defaults apply when it doesn't exist",
			},
			&cli.StringFlag{
				Name:    "connection-string",
				EnvVars: []string{"TWIN_AGENT_CONNECTION_STRING"},
				Usage:   "connect with this device or module connection string instead of the provisioned identity",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.New("main").WithError(err).Error("invalid invocation")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.Set(logging.Journal(os.Stdout, os.Stderr))
	if c.Bool("debug") {
		logging.Set(logging.Level("debug"))
	}

	log := logging.New("main")
	if logging.Debuggable {
		log.Info("low-level logging.Debuggable is enabled in this build")
	}
	log.WithField("version", marker.ModuleVersion).
		WithField("revision", marker.GitShortRev).
		WithField("sdk", iothub.SDKVersion).
		Info("starting")

	if err := runAgent(c.Context, c.String("config"), c.String("connection-string")); err != nil {
		log.WithError(err).Error("agent stopped")
		return cli.Exit("", 1)
	}
	log.Info("agent stopped")
	return nil
}

func runAgent(ctx context.Context, configPath, connectionString string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.WithMessage(err, "configuration")
	}

	inventory := platform.Static
	if cfg.ProbeInventory() {
		inventory = system.New(cfg.Inventory.StoragePath)
	}
	metadata, err := adu.New(logging.New("adu"), cfg.ADU.ConfigPath, cfg.ADU.SWVersionsPath, inventory)
	if err != nil {
		return errors.WithMessage(err, "update metadata")
	}

	source, err := iothub.SelectSource(connectionString, os.LookupEnv, cfg.IoTHub)
	if err != nil {
		return errors.WithMessage(err, "hub identity")
	}

	opts := twin.Options{
		Connector:     iothub.NewConnector(logging.New("iothub"), source, cfg.TokenLifetime()),
		Metadata:      metadata,
		Supervisor:    watchdog.Notifier{},
		ModuleVersion: marker.ModuleVersion,
		QueueCapacity: cfg.Twin.QueueCapacity,
	}
	wd, err := watchdog.Init()
	if err != nil {
		return err
	}
	if wd != nil {
		opts.Heartbeat = wd
	}

	t, err := twin.New(logging.New("twin"), opts)
	if err != nil {
		return errors.WithMessage(err, "initialization error")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group := workgroup.WithContext(ctx)
	group.Work(func(ctx context.Context) error {
		// The remaining workers only live as long as the twin.
		defer cancel()
		return errors.WithMessage(t.Run(ctx), "run error")
	})
	if cfg.Metrics.Listen != "" {
		group.Work(metrics.New(logging.New("metrics"), cfg.Metrics.Listen).Run)
	}
	return group.Wait()
}
