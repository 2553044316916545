package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conductores/onboarding-engine/internal/guard"
)

var (
	guardTarget string
	guardAll    bool
)

// consoleUI prints what a screen would show for a blocked transition.
type consoleUI struct{ out io.Writer }

func (c consoleUI) Navigate(_ context.Context, target string) {
	fmt.Fprintf(c.out, "redirect: %s\n", target)
}

func (c consoleUI) Warn(_ context.Context, message string) {
	fmt.Fprintf(c.out, "warning: %s\n", message)
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Evaluate eligibility guards against the saved flow context",
}

var guardCheckCmd = &cobra.Command{
	Use:   "check <stage>",
	Short: "Check whether the case may enter a stage",
	Long:  "Stages: kyc, quote, contract, contract-generation, delivery.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := guard.StageChain(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if guardAll {
			for _, d := range chain.EvaluateAll(env.Guards, guardTarget) {
				printDecision(out, d)
			}
			return nil
		}

		ui := consoleUI{out: out}
		d := guard.NewEnforcer(env.Guards, ui, ui).EnforceChain(cmd.Context(), chain, guardTarget)
		printDecision(out, d)
		return nil
	},
}

func printDecision(w io.Writer, d guard.Decision) {
	if d.Allowed {
		if d.Guard == "" {
			fmt.Fprintln(w, "allowed")
			return
		}
		fmt.Fprintf(w, "%-20s allowed\n", d.Guard)
		return
	}
	fmt.Fprintf(w, "%-20s blocked (%s) -> %s\n", d.Guard, d.Reason, d.Redirect)
}

func init() {
	guardCheckCmd.Flags().StringVar(&guardTarget, "target", "", "route the user is trying to reach")
	guardCheckCmd.Flags().BoolVar(&guardAll, "all", false, "evaluate every guard of the stage instead of stopping at the first block")
	guardCmd.AddCommand(guardCheckCmd)
	rootCmd.AddCommand(guardCmd)
}
