package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/channels"
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/platform"
)

var topologyDryRun bool

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Create or update the ScoreStream channels on Dispatcharr",
	Long: `Topology reads the channel configuration, computes the numbered channel
list and makes Dispatcharr match it: the group, one stream per channel and
the channels themselves. Running it again changes nothing unless the
configuration changed.

Examples:
  # Print the channel list without contacting Dispatcharr
  scorestream topology --dry-run

  # Converge Dispatcharr to the configuration
  scorestream topology`,
	RunE: runTopology,
}

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.Flags().BoolVar(&topologyDryRun, "dry-run", false, "Print the computed channels and exit")
}

func runTopology(cmd *cobra.Command, args []string) error {
	channelCfg, err := config.LoadChannelConfig(cfg.Channels.Path, cfg.Platform)
	if err != nil {
		return err
	}

	if topologyDryRun {
		for _, ch := range channels.Build(channelCfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "%5d  %-32s %s\n",
				ch.Number, ch.Name, channels.StreamURL(cfg.Platform.StreamBaseURL, ch.ID))
		}
		return nil
	}

	if !cfg.Platform.Enabled() {
		return errors.New("DISPATCHARR_URL is not set")
	}

	ctx, cancel := signalContext()
	defer cancel()

	syncer := channels.NewSyncer(platform.New(cfg.Platform, logger), cfg.Platform.StreamBaseURL, logger)
	result, err := syncer.Run(ctx, channelCfg)
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		logger.Error("channel failed", zap.String("channel", e.ID), zap.String("error", e.Error))
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d channels failed", len(result.Errors))
	}
	return nil
}
