package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conductores/onboarding-engine/internal/flowctx"
)

var contextTTL time.Duration

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect and edit the persisted flow context session",
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of the flow context",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSAVED\tEXPIRES")
		for _, e := range env.Flow.Entries() {
			expires := "-"
			if e.ExpiresAt != nil {
				expires = e.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.Timestamp.Format(time.RFC3339), expires)
		}
		return tw.Flush()
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set <key> <file>",
	Short: "Store a YAML or JSON document under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[1])
		}
		var data any
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return eris.Wrapf(err, "parse %s", args[1])
		}

		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []flowctx.Option
		if contextTTL > 0 {
			opts = append(opts, flowctx.WithTTL(contextTTL))
		}
		e := env.Flow.Save(args[0], data, opts...)
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s at %s\n", e.Key, e.Timestamp.Format(time.RFC3339))
		return nil
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Remove one entry, or every entry when no key is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			env.Flow.Clear(args[0])
			return nil
		}
		env.Flow.ClearAll()
		return nil
	},
}

func init() {
	contextSetCmd.Flags().DurationVar(&contextTTL, "ttl", 0, "expire the entry after this long")
	contextCmd.AddCommand(contextListCmd, contextSetCmd, contextClearCmd)
	rootCmd.AddCommand(contextCmd)
}
