// Package cli implements the agent-profiles command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/j-veylop/agent-profiles/internal/config"
	"github.com/j-veylop/agent-profiles/internal/logger"
	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services"
)

// skipManager marks commands that run without opening the stores.
const skipManager = "skip-manager"

// deps carries what every command needs once the root has started.
type deps struct {
	loadConfig  func() (*config.Config, error)
	openManager func(ctx context.Context, cfg *config.Config) (*services.Manager, error)
	stdin       io.Reader

	cfg     *config.Config
	mgr     *services.Manager
	jsonOut bool
}

func defaultDeps() *deps {
	return &deps{
		loadConfig: config.Load,
		openManager: func(ctx context.Context, cfg *config.Config) (*services.Manager, error) {
			return services.NewManager(ctx, cfg, services.WithLogger(logger.Logger))
		},
		stdin: os.Stdin,
	}
}

// Execute runs the root command against os.Args.
func Execute() error {
	rt := defaultDeps()
	return rt.execute(newRootCmd(rt))
}

// execute runs root and closes the manager even when the command failed, since cobra skips
// the post-run hooks after an error.
func (rt *deps) execute(root *cobra.Command) error {
	err := root.Execute()
	if stopErr := rt.stop(); err == nil {
		err = stopErr
	}
	return err
}

func newRootCmd(rt *deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "agent-profiles",
		Short: "Manage multiple agent accounts and pick the one that is available",
		Long: `agent-profiles keeps several OAuth profiles and API-key profiles side by side,
each with its own configuration directory and encrypted token, and selects the
account to use from authentication state, rate limits and usage thresholds.

Quick start:
  agent-profiles add Work           Create an OAuth profile with its own config dir
  agent-profiles token set work     Store a long-lived token for it
  agent-profiles list               Show every account, best first
  agent-profiles best               Switch to the best available account
  eval "$(agent-profiles env)"      Export the active account's environment`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipManager] == "true" {
				return nil
			}
			return rt.start(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return rt.stop()
		},
	}

	root.PersistentFlags().BoolVar(&rt.jsonOut, "json", false, "output as JSON")

	root.AddCommand(
		newListCmd(rt),
		newAddCmd(rt),
		newRenameCmd(rt),
		newLoggedInCmd(rt),
		newDeleteCmd(rt),
		newUseCmd(rt),
		newBestCmd(rt),
		newEnvCmd(rt),
		newLimitCmd(rt),
		newClearLimitCmd(rt),
		newUsageCmd(rt),
		newRecommendCmd(rt),
		newForecastCmd(rt),
		newPriorityCmd(rt),
		newAutoSwitchCmd(rt),
		newTokenCmd(rt),
		newAPICmd(rt),
		newTUICmd(rt),
		newVersionCmd(),
	)
	return root
}

func (rt *deps) start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := rt.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rt.cfg = cfg

	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	mgr, err := rt.openManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	rt.mgr = mgr
	return nil
}

func (rt *deps) stop() error {
	if rt.mgr == nil {
		return nil
	}
	err := rt.mgr.Close()
	rt.mgr = nil
	return err
}

// resolveAccount accepts a profile id, an API profile id, or a qualified "oauth-<id>"/"api-<id>".
func (rt *deps) resolveAccount(arg string) (models.AccountID, error) {
	if rt.mgr.Profiles().GetProfile(arg) != nil {
		return models.OAuthAccount(arg), nil
	}
	if rt.mgr.APIProfiles().Get(arg) != nil {
		return models.APIKeyAccount(arg), nil
	}
	if id, err := models.ParseAccountID(arg); err == nil {
		return id, nil
	}
	return models.AccountID{}, fmt.Errorf("%w: %s", services.ErrUnknownAccount, arg)
}

func (rt *deps) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (rt *deps) printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
