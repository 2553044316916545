package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/conductores/onboarding-engine/internal/policy"
	"github.com/conductores/onboarding-engine/internal/tanda"
)

var (
	tandaMembers      int
	tandaContribution float64
	tandaRounds       int
	tandaStart        string
	tandaRotation     []int
	tandaGroup        string
	tandaAdvisor      string
)

var tandaCmd = &cobra.Command{
	Use:   "tanda",
	Short: "Validate collective savings groups",
}

var tandaValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a tanda and build its payout schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := tandaConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(env.Validator.Validate(cmd.Context(), tc))
	},
}

func tandaConfigFromFlags(cmd *cobra.Command) (tanda.Config, error) {
	if tandaMembers <= 0 {
		return tanda.Config{}, eris.New("--members must be > 0")
	}
	tc := tanda.Config{
		Market:        policy.MarketEdomex,
		ClientType:    policy.ClientColectivo,
		Members:       tandaMembers,
		Contribution:  tandaContribution,
		Rounds:        tandaRounds,
		RotationOrder: tandaRotation,
	}
	if !cmd.Flags().Changed("rounds") {
		tc.Rounds = tandaMembers
	}
	if tandaStart != "" {
		start, err := time.Parse(time.DateOnly, tandaStart)
		if err != nil {
			return tc, eris.Wrap(err, "--start-date must be YYYY-MM-DD")
		}
		tc.StartDate = &start
	}
	if cmd.Flags().Changed("group-name") {
		tc.GroupName = &tandaGroup
	}
	if cmd.Flags().Changed("advisor") {
		tc.AdvisorID = &tandaAdvisor
	}
	return tc, nil
}

func init() {
	f := tandaValidateCmd.Flags()
	f.IntVar(&tandaMembers, "members", 0, "number of members")
	f.Float64Var(&tandaContribution, "contribution", 0, "monthly contribution per member")
	f.IntVar(&tandaRounds, "rounds", 0, "number of payout rounds (default: members)")
	f.StringVar(&tandaStart, "start-date", "", "first payout date, YYYY-MM-DD (default: today)")
	f.IntSliceVar(&tandaRotation, "rotation", nil, "payout order as 1-based member indexes")
	f.StringVar(&tandaGroup, "group-name", "", "group name")
	f.StringVar(&tandaAdvisor, "advisor", "", "advisor id")

	tandaCmd.AddCommand(tandaValidateCmd)
	rootCmd.AddCommand(tandaCmd)
}
