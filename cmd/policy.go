package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conductores/onboarding-engine/internal/policy"
)

var (
	policyMarket     string
	policyClientType string
	policySaleType   string
	policyMembers    int
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and manage market document policies",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the documents and metadata for a market and client type",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		pc := policy.Context{
			Market:     policy.NormalizeAlias(policyMarket),
			ClientType: policy.NormalizeAlias(policyClientType),
			SaleType:   policySaleType,
		}
		if cmd.Flags().Changed("members") {
			pc.CollectiveSize = policy.Ptr(policyMembers)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(env.Policies.Documents(pc))
	},
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <base> <next>",
	Short: "Show what changes between two policy files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := policy.LoadFile(args[0])
		if err != nil {
			return err
		}
		next, err := policy.LoadFile(args[1])
		if err != nil {
			return err
		}

		items := policy.Diff(base, next)
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Sin cambios.")
			return nil
		}
		for _, it := range items {
			fmt.Fprintln(cmd.OutOrStdout(), it.String())
		}
		return nil
	},
}

var policyApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Save a policy file to the remote config service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := policy.LoadFile(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if current, _, ok := env.Policies.RemoteSnapshot(); ok {
			for _, it := range policy.Diff(current, rc) {
				fmt.Fprintln(cmd.OutOrStdout(), it.String())
			}
		}
		if err := env.Policies.SaveToRemote(cmd.Context(), rc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d market(s) from %s\n", len(rc), args[0])
		return nil
	},
}

func init() {
	policyShowCmd.Flags().StringVar(&policyMarket, "market", policy.MarketAguascalientes, "market")
	policyShowCmd.Flags().StringVar(&policyClientType, "client-type", policy.ClientIndividual, "client type")
	policyShowCmd.Flags().StringVar(&policySaleType, "sale-type", policy.SaleFinanciero, "sale type (financiero, contado)")
	policyShowCmd.Flags().IntVar(&policyMembers, "members", 0, "collective size")

	policyCmd.AddCommand(policyShowCmd, policyDiffCmd, policyApplyCmd)
	rootCmd.AddCommand(policyCmd)
}
