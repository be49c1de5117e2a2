package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightseq/internal/registry"
	"github.com/dokzlo13/lightseq/internal/wiz"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find lights on the network and print their state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := wiz.NewClient(wiz.Options{
			Port:          cfg.Network.Port,
			CallTimeout:   cfg.Network.CallTimeout.Duration(),
			RateLimitRPS:  cfg.Network.RateLimitRPS,
			DiscoveryWait: cfg.Network.DiscoveryWait.Duration(),
		})
		reg := registry.New(client, registry.Options{
			Attempts:   cfg.Network.DiscoveryAttempts,
			RetryDelay: cfg.Network.DiscoveryRetryDelay.Duration(),
		})
		for _, ip := range cfg.Network.Lights {
			reg.Add(client.Bulb(ip))
		}

		ctx := cmd.Context()
		if _, err := reg.Refresh(ctx, cfg.Network.Broadcast); err != nil && reg.Len() == 0 {
			return err
		}
		failed := reg.PollAll(ctx)

		out := cmd.OutOrStdout()
		renderDevices(out, reg.Snapshot())
		if failed > 0 {
			fmt.Fprintf(out, "%d of %d lights did not answer\n", failed, reg.Len())
		}
		return nil
	},
}
