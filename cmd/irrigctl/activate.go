package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hubertat/irrigkit"
	"github.com/hubertat/irrigkit/collector"
)

var activateOpts = struct {
	Duration time.Duration
}{}

func init() {
	activateCmd.Flags().DurationVar(&activateOpts.Duration, "duration", 0, "switch the channel back after this long (0 leaves it)")
	rootCmd.AddCommand(activateCmd)
}

var activateCmd = &cobra.Command{
	Use:     "activate <channel> [true|false]",
	Short:   "Publish a control payload for an irrigation channel",
	Args:    cobra.RangeArgs(1, 2),
	RunE:    activate,
	Example: "  irrigctl activate c2\n  irrigctl activate 2 false\n  irrigctl activate c1 false --duration 15m",
}

func activate(cmd *cobra.Command, args []string) error {
	state := true
	if len(args) > 1 {
		var err error
		state, err = irrigkit.ParsePayload([]byte(args[1]))
		if err != nil {
			return err
		}
	}

	opts, err := collector.BrokerOptions(rootOpts.Broker, rootOpts.ClientId)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client, err := collector.Connect(connectCtx, opts)
	if err != nil {
		return err
	}

	topic := collector.ActivateTopic(args[0])
	if activateOpts.Duration <= 0 {
		err = collector.Activate(client, args[0], state)
		if err != nil {
			return err
		}
		log.Info("control message sent", "topic", topic, "state", state)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("activating", "topic", topic, "state", state, "duration", activateOpts.Duration)
	err = collector.ActivateFor(ctx, client, args[0], state, activateOpts.Duration)
	if err != nil {
		return err
	}
	log.Info("switched back", "topic", topic, "state", !state)
	return nil
}
