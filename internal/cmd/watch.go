package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/diag"
	"github.com/upcast-io/upcast/internal/feed"
	"github.com/upcast-io/upcast/internal/interactive"
	"github.com/upcast-io/upcast/internal/telemetry"
	"github.com/upcast-io/upcast/internal/trigger"
)

func newWatchCmd() *cobra.Command {
	var auto bool
	var downloadDir string
	var diagAddr string
	var brokerURL string
	var topic string
	var username string
	var password string
	var insecure bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check the feed on a schedule until interrupted",
		Long: `Watch runs the agent in the foreground, checking the feed on the
identity's interval. Offered updates are announced on every check; with
--auto they are downloaded and verified without asking.

Remote check-now commands can arrive over MQTT, and a diagnostics
endpoint can expose status and Prometheus metrics.

Examples:
  upcast watch
  upcast watch --auto
  upcast watch --broker mqtt://broker:1883
  upcast watch --diag-addr 127.0.0.1:9980`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, auto, downloadDir, diagAddr, trigger.Options{
				BrokerURL:          brokerURL,
				Topic:              topic,
				Username:           username,
				Password:           password,
				InsecureSkipVerify: insecure,
			})
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "Download and verify offered updates without asking")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Directory for downloaded artifacts")
	cmd.Flags().StringVar(&diagAddr, "diag-addr", "", "Listen address for the diagnostics endpoint (disabled when empty)")
	cmd.Flags().StringVar(&brokerURL, "broker", "", "MQTT broker URL for remote check triggers (disabled when empty)")
	cmd.Flags().StringVar(&topic, "topic", "", "MQTT topic to listen on (default upcast/<app>/check)")
	cmd.Flags().StringVar(&username, "broker-user", "", "MQTT username")
	cmd.Flags().StringVar(&password, "broker-password", "", "MQTT password")
	cmd.Flags().BoolVar(&insecure, "broker-insecure", false, "Skip TLS certificate verification for the broker")

	return cmd
}

func runWatch(cmd *cobra.Command, auto bool, downloadDir, diagAddr string, trigOpts trigger.Options) error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}

	var confirmer agent.Confirmer
	if !auto {
		// Unattended checks announce the offer and stop there. Declined
		// offers come back on the next tick.
		confirmer = agent.ConfirmerFunc(func(context.Context, *feed.Feed) (agent.Response, error) {
			return agent.Decline, nil
		})
	}

	rec := telemetry.NewPromRecorder()

	ag, err := buildAgent(id, agent.Config{
		Recorder:    rec,
		Notifier:    interactive.NewConsoleNotifier(cmd.OutOrStdout()),
		Confirmer:   confirmer,
		DownloadDir: downloadDir,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var triggers <-chan string
	if trigOpts.BrokerURL != "" {
		listener, err := trigger.NewListener(id.Name, trigOpts, rootLog)
		if err != nil {
			return err
		}
		if err := listener.Start(ctx); err != nil {
			return err
		}
		defer listener.Stop(context.Background())
		triggers = listener.Triggers()
	}

	if diagAddr != "" {
		srv := diag.NewServer(diagAddr, ag, rec.Registry(), rootLog)
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	g.Go(func() error {
		return ag.Run(ctx, triggers)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
