package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hubertat/irrigkit"
	"github.com/hubertat/irrigkit/collector"
)

func init() {
	collectCmd.Flags().StringVarP(&collectOpts.Store, "store", "s", "log", "where measurements go: log, influx or postgres")
	collectCmd.Flags().StringVar(&collectOpts.Dsn, "dsn", os.Getenv("IRRIGKIT_DSN"), "postgres connection string")
	collectCmd.Flags().StringVar(&collectOpts.Influx.Host, "influx-host", "http://localhost:8086", "influxdb url")
	collectCmd.Flags().StringVar(&collectOpts.Influx.Token, "influx-token", os.Getenv("INFLUX_TOKEN"), "influxdb token")
	collectCmd.Flags().StringVar(&collectOpts.Influx.Organization, "influx-org", "", "influxdb organization")
	collectCmd.Flags().StringVar(&collectOpts.Influx.Bucket, "influx-bucket", "irrigation", "influxdb bucket")
	collectCmd.Flags().StringVar(&collectOpts.Influx.Station, "station", "", "station tag written with every point")
	collectCmd.Flags().IntVar(&collectOpts.Threshold, "threshold", 30, "soil moisture percent under which irrigation is flagged")
	rootCmd.AddCommand(collectCmd)
}

var (
	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Store readings (chanel/#) and channel states (irrigation/#)",
		Args:  cobra.NoArgs,
		RunE:  collect,
	}
	collectOpts = struct {
		Store     string
		Dsn       string
		Influx    irrigkit.InfluxConfig
		Threshold int
	}{}
)

func openStore(cmd *cobra.Command) (collector.Store, error) {
	switch collectOpts.Store {
	case "log":
		return collector.NewLogStore(os.Stdout), nil
	case "influx":
		return collector.NewInfluxStore(collectOpts.Influx, collectOpts.Threshold), nil
	case "postgres":
		if len(collectOpts.Dsn) == 0 {
			return nil, errors.New("postgres store needs --dsn")
		}
		return collector.NewPostgresStore(cmd.Context(), collectOpts.Dsn)
	}
	return nil, errors.Errorf("unknown store %q", collectOpts.Store)
}

func collect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := collector.BrokerOptions(rootOpts.Broker, rootOpts.ClientId)
	if err != nil {
		return err
	}
	client, err := collector.Connect(ctx, opts)
	if err != nil {
		return err
	}

	return collector.New(store).Run(ctx, client)
}
