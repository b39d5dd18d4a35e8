package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gossipcast/internal/config"
	"gossipcast/internal/server"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Configure Logrus
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	if err := rootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gossipcast",
		Short:         "Advertise this host on a multicast group and track cluster members",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			level, _ := logrus.ParseLevel(cfg.LogLevel)
			logrus.SetLevel(level)

			srv, err := server.New(cfg, logrus.StandardLogger(), server.Options{Version: version})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(membersCmd())
	return cmd
}
