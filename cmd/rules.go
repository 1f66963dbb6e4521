package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"modelmap/core"
	"modelmap/logger"
	"modelmap/models"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	ruleTarget    string
	exportFormat  string
	exportOutput  string
	importMode    string
	customReplace string
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Short:   "Manage model mapping rules",
	Long:    `List, add, remove, import and export the rules that rename upstream models.`,
	Aliases: []string{"r"},
}

// withServices loads the rule set, runs fn and flushes any edits before returning.
func withServices(fn func(ctx context.Context, svc *services) error) error {
	ctx := context.Background()
	svc, err := newServices(ctx, false)
	if err != nil {
		return err
	}
	runErr := fn(ctx, svc)
	if err := svc.close(ctx); err != nil {
		logger.Error("Saving rules failed: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all mapping rules",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules := svc.store.Rules()
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mapping rules found.")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(writer, "SOURCE\tTARGET")
			fmt.Fprintln(writer, "------\t------")
			for _, r := range rules {
				fmt.Fprintf(writer, "%s\t%s\n", r.SourceModel, r.TargetModel)
			}
			return writer.Flush()
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <source-model>",
	Short: "Add a mapping rule",
	Long:  `Adds a rule renaming <source-model> to --target (defaults to the source). Existing rules are never overwritten.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			if !svc.store.AddRule(args[0], ruleTarget) {
				target, _ := svc.store.GetTargetModel(args[0])
				return fmt.Errorf("a rule for %q already exists (target %q)", args[0], target)
			}
			target, _ := svc.store.GetTargetModel(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Added rule %s -> %s\n", args[0], target)
			return nil
		})
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:     "remove <source-model>",
	Short:   "Remove a mapping rule",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			if !svc.store.HasRule(args[0]) {
				return fmt.Errorf("no rule for %q", args[0])
			}
			svc.store.RemoveRule(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Removed rule for %s\n", args[0])
			return nil
		})
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rules, custom rules and process config",
	Long:  `Writes the export document as JSON (importable) or YAML (for review) to --output or stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			data, err := encodeExport(svc.store, exportFormat)
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(exportOutput, data, 0640); err != nil {
				return fmt.Errorf("writing %s: %w", exportOutput, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rules to %s\n", svc.store.RuleCount(), exportOutput)
			return nil
		})
	},
}

func encodeExport(store *core.RuleStore, format string) ([]byte, error) {
	switch format {
	case "", "json":
		return store.ExportRules()
	case "yaml", "yml":
		data, err := yaml.Marshal(store.ExportDocument())
		if err != nil {
			return nil, fmt.Errorf("marshalling export document as yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want json or yaml)", format)
	}
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Import an exported rule document",
	Long: `Imports a JSON export document. --mode overwrite replaces rules and custom rules;
--mode append keeps existing rules. Defaults to the stored sync mode.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		return withServices(func(ctx context.Context, svc *services) error {
			mode := svc.store.SyncMode()
			if importMode != "" {
				mode = models.SyncMode(importMode)
			}
			result, err := svc.store.ImportRules(data, mode)
			var validation *core.ValidationError
			if errors.As(err, &validation) {
				return fmt.Errorf("import rejected: %s", validation.Message)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules (%s)\n", result.Imported, mode)
			return nil
		})
	},
}

var rulesAutoProcessCmd = &cobra.Command{
	Use:   "auto-process",
	Short: "Rewrite every rule's target through the transform pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			before := svc.store.Rules()
			svc.store.AutoProcessRules()
			after := svc.store.Rules()
			changed := 0
			for i := range after {
				if i < len(before) && before[i].TargetModel != after[i].TargetModel {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", after[i].SourceModel, before[i].TargetModel, after[i].TargetModel)
					changed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rules changed\n", changed, len(after))
			return nil
		})
	},
}

var rulesProcessCmd = &cobra.Command{
	Use:   "process <name>",
	Short: "Show what the transform pipeline makes of a model name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			fmt.Fprintln(cmd.OutOrStdout(), core.ApplyProcessRules(args[0], svc.store.ProcessConfig(), svc.store.CustomRules()))
			return nil
		})
	},
}

var rulesImportChannelsCmd = &cobra.Command{
	Use:   "import-channels",
	Short: "Derive rules from the upstream channels' current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			result, err := svc.channels.ImportFromChannels(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules, skipped %d existing\n", result.Imported, result.Skipped)
			return nil
		})
	},
}

var customCmd = &cobra.Command{
	Use:   "custom",
	Short: "Manage custom replace rules",
}

var customListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List custom replace rules",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rules := svc.store.CustomRules()
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No custom replace rules found.")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
			fmt.Fprintln(writer, "ID\tPRIORITY\tSEARCH\tREPLACE\tENABLED")
			for _, r := range rules {
				fmt.Fprintf(writer, "%s\t%d\t%q\t%q\t%t\n", r.ID, r.Priority, r.Search, r.Replace, r.Enabled)
			}
			return writer.Flush()
		})
	},
}

var customAddCmd = &cobra.Command{
	Use:   "add <search>",
	Short: "Add a custom replace rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			rule := svc.store.AddCustomRule(args[0], customReplace)
			fmt.Fprintf(cmd.OutOrStdout(), "Added custom rule %s (priority %d)\n", rule.ID, rule.Priority)
			return nil
		})
	},
}

var customRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Short:   "Remove a custom replace rule",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			svc.store.RemoveCustomRule(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Removed custom rule %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rulesAddCmd.Flags().StringVarP(&ruleTarget, "target", "t", "", "target model (defaults to the source model)")
	rulesExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json or yaml")
	rulesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	rulesImportCmd.Flags().StringVarP(&importMode, "mode", "m", "", "append or overwrite (defaults to the stored sync mode)")
	customAddCmd.Flags().StringVarP(&customReplace, "replace", "r", "", "replacement text (empty removes the match)")

	customCmd.AddCommand(customListCmd, customAddCmd, customRemoveCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd, rulesExportCmd, rulesImportCmd,
		rulesAutoProcessCmd, rulesProcessCmd, rulesImportChannelsCmd, customCmd)
	rootCmd.AddCommand(rulesCmd)
}
