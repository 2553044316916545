package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conductores/onboarding-engine/internal/config"
)

var cfg *config.Config

var (
	configPath string
	logLevel   string
	sessionKey string
)

var rootCmd = &cobra.Command{
	Use:   "onboarding",
	Short: "Eligibility engine for vehicle-financing onboarding",
	Long: `Evaluates whether an onboarding case may advance to its next stage.

Document requirements come from the market policies (local rules, a policy
file or the remote config service). Stage snapshots live in the flow context
session, and collective cases in Estado de México are checked against the
tanda service with a local fallback.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if sessionKey != "" {
			c.Store.SessionKey = sessionKey
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	f.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	f.StringVar(&sessionKey, "session", "", "flow context session to read and write")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
