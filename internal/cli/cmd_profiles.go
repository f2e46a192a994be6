package cli

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/j-veylop/agent-profiles/internal/models"
	"github.com/j-veylop/agent-profiles/internal/services"
	"github.com/j-veylop/agent-profiles/internal/unified"
)

// listEntry is the JSON shape of one account in `list`. Secrets are never included.
type listEntry struct {
	AvailableAt    *time.Time `json:"availableAt,omitempty"`
	SessionPercent *float64   `json:"sessionPercent,omitempty"`
	WeeklyPercent  *float64   `json:"weeklyPercent,omitempty"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	ConfigDir      string     `json:"configDir,omitempty"`
	BaseURL        string     `json:"baseUrl,omitempty"`
	Active         bool       `json:"active"`
	Available      bool       `json:"available"`
	NeedsReauth    bool       `json:"needsReauth,omitempty"`
}

func (rt *deps) entry(acc unified.Account) listEntry {
	e := listEntry{
		ID:        acc.ID.String(),
		Name:      acc.Name,
		Kind:      acc.ID.Kind.String(),
		Active:    acc.Active,
		Available: acc.Available,
	}
	if !acc.AvailableAt.IsZero() {
		at := acc.AvailableAt
		e.AvailableAt = &at
	}
	switch {
	case acc.OAuth != nil:
		e.ConfigDir = acc.OAuth.ConfigDir
		e.NeedsReauth = rt.mgr.Profiles().NeedsReauth(acc.OAuth.ID)
		if u := acc.OAuth.Usage; u != nil {
			session, weekly := u.SessionUsagePercent, u.WeeklyUsagePercent
			e.SessionPercent, e.WeeklyPercent = &session, &weekly
		}
	case acc.API != nil:
		e.BaseURL = acc.API.BaseURL
	}
	return e
}

func newListCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all accounts, available ones first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts := rt.mgr.Accounts()
			entries := make([]listEntry, len(accounts))
			for i, acc := range accounts {
				entries[i] = rt.entry(acc)
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, entries)
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("", "ACCOUNT", "NAME", "SESSION", "WEEKLY", "STATUS")
			for _, e := range entries {
				marker := ""
				if e.Active {
					marker = "*"
				}
				t.Row(marker, e.ID, e.Name, percent(e.SessionPercent), percent(e.WeeklyPercent), status(e))
			}
			rt.printf(cmd, "%s\n", t.String())
			return nil
		},
	}
}

func percent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *p)
}

func status(e listEntry) string {
	switch {
	case e.AvailableAt != nil:
		return "limited until " + e.AvailableAt.Local().Format("Jan 2 15:04")
	case e.NeedsReauth:
		return "needs login"
	case e.Available:
		return "available"
	default:
		return "unavailable"
	}
}

func newAddCmd(rt *deps) *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an OAuth profile",
		Long: `Create an OAuth profile. Without --config-dir the profile gets a fresh
directory under the profiles directory; log in with CLAUDE_CONFIG_DIR set to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.mgr.AddProfile(args[0], configDir)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, rt.entry(unified.Account{ID: models.OAuthAccount(p.ID), Name: p.Name, OAuth: p}))
			}
			rt.printf(cmd, "Added profile %s (%s)\nConfig dir: %s\n", p.Name, p.ID, p.ConfigDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "use an existing configuration directory")
	return cmd
}

func newRenameCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <profile> <name>",
		Short: "Change the display name of an OAuth profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.mgr.Profiles().RenameProfile(args[0], args[1]); err != nil {
				return err
			}
			rt.printf(cmd, "Renamed %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newDeleteCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <account>",
		Aliases: []string{"rm"},
		Short:   "Delete an OAuth or API-key account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rt.resolveAccount(args[0])
			if err != nil {
				return err
			}
			if err := rt.mgr.DeleteAccount(id); err != nil {
				return err
			}
			rt.printf(cmd, "Deleted %s\n", id)
			return nil
		},
	}
}

func newUseCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "use <account>",
		Short: "Make an account active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rt.resolveAccount(args[0])
			if err != nil {
				return err
			}
			ev, err := rt.mgr.SwitchTo(id, models.SwitchManual)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, ev)
			}
			rt.printf(cmd, "Active account: %s\n", ev.To)
			return nil
		},
	}
}

func newBestCmd(rt *deps) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Switch to the best available account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				best := rt.mgr.BestAccount(models.AccountID{})
				if best == nil {
					return services.ErrNoneAvailable
				}
				rt.printf(cmd, "%s (%s)\n", best.Name, best.ID)
				return nil
			}

			best, err := rt.mgr.SwitchToBest(models.SwitchManual)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, rt.entry(*best))
			}
			rt.printf(cmd, "Active account: %s (%s)\n", best.Name, best.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the best account without switching")
	return cmd
}

func newEnvCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "env [account]",
		Short: "Print the environment a process needs to run as an account",
		Long: `Print shell exports for the active account, or for the given one.

Example:
  eval "$(agent-profiles env)"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := rt.mgr.ActiveAccount()
			if len(args) == 1 {
				var err error
				if id, err = rt.resolveAccount(args[0]); err != nil {
					return err
				}
			}

			env, err := rt.mgr.Env(id)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, env)
			}
			for _, k := range slices.Sorted(maps.Keys(env)) {
				rt.printf(cmd, "export %s=%s\n", k, shellescape.Quote(env[k]))
			}
			return nil
		},
	}
}

func newLoggedInCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logged-in <profile>",
		Short: "Confirm that a moved profile has logged in again in its own directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := rt.mgr.Profiles()
			if !store.NeedsReauth(args[0]) {
				rt.printf(cmd, "%s does not need a new login\n", args[0])
				return nil
			}
			if err := store.MarkReauthenticated(args[0]); err != nil {
				return err
			}
			rt.printf(cmd, "%s marked as logged in\n", args[0])
			return nil
		},
	}
}
