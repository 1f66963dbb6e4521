package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"modelmap/core"
	"modelmap/logger"

	"github.com/spf13/cobra"
)

var (
	applyForce    bool
	fetchUpstream bool
)

// channelsCmd represents the base command for upstream channel operations
var channelsCmd = &cobra.Command{
	Use:     "channels",
	Short:   "Inspect and reconfigure upstream gateway channels",
	Long:    `Lists the gateway's channels, previews the config the rules generate for one, and pushes it.`,
	Aliases: []string{"ch"},
}

func parseChannelID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid channel id %q", arg)
	}
	return id, nil
}

// loadChannel fills the channel cache and, when asked, fetches the channel's provider model list.
func loadChannel(ctx context.Context, svc *services, id int64) error {
	if _, err := svc.channels.LoadChannels(ctx); err != nil {
		return err
	}
	if !fetchUpstream {
		return nil
	}
	_, ok, err := svc.channels.LoadUpstreamModels(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("channels: using configured models of channel %d, fetch failed", id)
	}
	return nil
}

var channelsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List upstream channels",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			channels, err := svc.channels.LoadChannels(ctx)
			if err != nil {
				return err
			}
			if len(channels) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No channels found upstream.")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(writer, "ID\tNAME\tSTATUS\tGROUP\tMODELS")
			fmt.Fprintln(writer, "--\t----\t------\t-----\t------")
			for _, ch := range channels {
				fmt.Fprintf(writer, "%d\t%s\t%d\t%s\t%d\n", ch.ID, ch.Name, ch.Status, ch.Group, len(ch.EnabledModels()))
			}
			return writer.Flush()
		})
	},
}

var channelsPreviewCmd = &cobra.Command{
	Use:   "preview <channel-id>",
	Short: "Show the config the rules generate for a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseChannelID(args[0])
		if err != nil {
			return err
		}
		return withServices(func(ctx context.Context, svc *services) error {
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := loadChannel(ctx, svc, id); err != nil {
				return err
			}
			preview, err := svc.channels.Preview(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Channel %d (%s)\n", preview.ChannelID, preview.ChannelName)
			fmt.Fprintf(out, "models: %s\n", preview.Models)
			fmt.Fprintf(out, "model_mapping: %s\n", preview.ModelMapping)
			for _, c := range preview.Conflicts {
				fmt.Fprintf(out, "conflict: %s <- %s\n", c.TargetModel, strings.Join(c.SourceModels, ", "))
			}
			return nil
		})
	},
}

var channelsApplyCmd = &cobra.Command{
	Use:   "apply <channel-id>",
	Short: "Push the generated config to a channel",
	Long:  `Pushes the generated models list and model_mapping to the channel. Conflicting targets abort the push unless --force is given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseChannelID(args[0])
		if err != nil {
			return err
		}
		return withServices(func(ctx context.Context, svc *services) error {
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := loadChannel(ctx, svc, id); err != nil {
				return err
			}
			preview, err := svc.channels.Apply(ctx, id, applyForce)
			if errors.Is(err, core.ErrDuplicateTargets) {
				for _, c := range preview.Conflicts {
					fmt.Fprintf(cmd.ErrOrStderr(), "conflict: %s <- %s\n", c.TargetModel, strings.Join(c.SourceModels, ", "))
				}
				return fmt.Errorf("%w (use --force to push anyway)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d models to channel %d (%s)\n",
				len(preview.Config.EnabledModels), preview.ChannelID, preview.ChannelName)
			return nil
		})
	},
}

func init() {
	channelsPreviewCmd.Flags().BoolVar(&fetchUpstream, "fetch", true, "fetch the provider's model list instead of using the configured models")
	channelsApplyCmd.Flags().BoolVar(&fetchUpstream, "fetch", true, "fetch the provider's model list instead of using the configured models")
	channelsApplyCmd.Flags().BoolVarP(&applyForce, "force", "f", false, "push even when several source models map to one target")

	channelsCmd.AddCommand(channelsListCmd, channelsPreviewCmd, channelsApplyCmd)
	rootCmd.AddCommand(channelsCmd)
}
