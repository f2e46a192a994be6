package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j-veylop/agent-profiles/internal/models"
)

func newLimitCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "limit <account> [reset text]",
		Short: "Record that the provider rate-limited an account",
		Long: `Record a rate limit. The reset text is the provider's own wording, for example
"resets 3pm (Europe/Berlin)" or "resets in 2h 30m"; without it the account stays
limited until the default cool-down elapses.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rt.resolveAccount(args[0])
			if err != nil {
				return err
			}
			ev, err := rt.mgr.ReportRateLimit(id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, ev)
			}
			rt.printf(cmd, "%s is rate-limited until %s\n", id, ev.ResetAt.Local().Format("Jan 2 15:04"))
			return nil
		},
	}
}

func newClearLimitCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-limit <account>",
		Short: "Forget the rate limits recorded for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rt.resolveAccount(args[0])
			if err != nil {
				return err
			}
			if err := rt.mgr.ClearRateLimit(id); err != nil {
				return err
			}
			rt.printf(cmd, "Cleared rate limits of %s\n", id)
			return nil
		},
	}
}

func newUsageCmd(rt *deps) *cobra.Command {
	var session, weekly, opus float64
	cmd := &cobra.Command{
		Use:   "usage <profile>",
		Short: "Report usage for an OAuth profile",
		Long: `Report usage either as percentages (--session and --weekly) or by piping the
client's usage screen on stdin, which is parsed for the session, weekly and
Opus windows and their reset times.

Example:
  agent-profiles usage work --session 42 --weekly 17
  claude /usage | agent-profiles usage work`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID := args[0]

			var snapshot models.UsageSnapshot
			var err error
			if cmd.Flags().Changed("session") || cmd.Flags().Changed("weekly") {
				var opusPtr *float64
				if cmd.Flags().Changed("opus") {
					opusPtr = &opus
				}
				snapshot, err = rt.mgr.ReportUsagePercentages(profileID, session, weekly, opusPtr)
			} else {
				raw, readErr := io.ReadAll(rt.stdin)
				if readErr != nil {
					return fmt.Errorf("read usage: %w", readErr)
				}
				snapshot, err = rt.mgr.ReportUsage(profileID, string(raw))
			}
			if err != nil {
				return err
			}

			if rt.jsonOut {
				return rt.printJSON(cmd, snapshot)
			}
			rt.printf(cmd, "%s: session %.0f%%, weekly %.0f%%\n", profileID, snapshot.SessionUsagePercent, snapshot.WeeklyUsagePercent)
			return nil
		},
	}
	cmd.Flags().Float64Var(&session, "session", 0, "session window usage percent")
	cmd.Flags().Float64Var(&weekly, "weekly", 0, "weekly window usage percent")
	cmd.Flags().Float64Var(&opus, "opus", 0, "weekly Opus usage percent")
	return cmd
}

type recommendation struct {
	Suggested    string `json:"suggested,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ShouldSwitch bool   `json:"shouldSwitch"`
}

func newRecommendCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Tell whether the active profile should be switched away from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec := rt.mgr.Recommend()
			out := recommendation{Reason: rec.Reason, ShouldSwitch: rec.ShouldSwitch}
			if rec.Suggested != nil {
				out.Suggested = rec.Suggested.ID
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, out)
			}

			if !out.ShouldSwitch {
				rt.printf(cmd, "No switch needed\n")
				return nil
			}
			rt.printf(cmd, "Switch recommended: %s\n", out.Reason)
			if out.Suggested != "" {
				rt.printf(cmd, "Suggested profile: %s\n", out.Suggested)
			}
			return nil
		},
	}
}

func newPriorityCmd(rt *deps) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "priority [account...]",
		Short: "Show or set the order in which accounts are preferred",
		Long: `Without arguments print the priority order. With arguments replace it; accounts
of both kinds may be mixed, and unlisted accounts rank after listed ones.

Example:
  agent-profiles priority work api-proxy home`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := rt.mgr.Profiles()

			if clear {
				if err := store.SetPriorityOrder(nil); err != nil {
					return err
				}
				rt.printf(cmd, "Priority order cleared\n")
				return nil
			}

			if len(args) == 0 {
				_, order := rt.mgr.Settings()
				if rt.jsonOut {
					return rt.printJSON(cmd, order)
				}
				if len(order) == 0 {
					rt.printf(cmd, "No priority order set\n")
				}
				for i, id := range order {
					rt.printf(cmd, "%d. %s\n", i+1, id)
				}
				return nil
			}

			order := make([]models.AccountID, 0, len(args))
			for _, arg := range args {
				id, err := rt.resolveAccount(arg)
				if err != nil {
					return err
				}
				order = append(order, id)
			}
			if err := store.SetPriorityOrder(order); err != nil {
				return err
			}
			rt.printf(cmd, "Priority order updated\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the priority order")
	return cmd
}

func newAutoSwitchCmd(rt *deps) *cobra.Command {
	var (
		enable, disable   bool
		session, weekly   float64
		independent       bool
		switchOnRateLimit bool
	)
	cmd := &cobra.Command{
		Use:   "auto-switch",
		Short: "Show or change proactive switching settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}

			settings, _ := rt.mgr.Settings()
			flags := cmd.Flags()
			changed := false
			if enable || disable {
				settings.Enabled = enable
				changed = true
			}
			if flags.Changed("session") {
				settings.SessionThreshold = session
				changed = true
			}
			if flags.Changed("weekly") {
				settings.WeeklyThreshold = weekly
				changed = true
			}
			if flags.Changed("independent") {
				settings.IndependentThresholds = independent
				changed = true
			}
			if flags.Changed("on-rate-limit") {
				settings.SwitchOnRateLimit = switchOnRateLimit
				changed = true
			}
			if changed {
				if err := rt.mgr.Profiles().SetAutoSwitch(settings); err != nil {
					return err
				}
			}

			if rt.jsonOut {
				return rt.printJSON(cmd, settings)
			}
			s, w := settings.Thresholds()
			rt.printf(cmd, "enabled: %t\nsession threshold: %.0f%%\nweekly threshold: %.0f%%\nswitch on rate limit: %t\n",
				settings.Enabled, s, w, settings.SwitchOnRateLimit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "turn proactive switching on")
	cmd.Flags().BoolVar(&disable, "disable", false, "turn proactive switching off")
	cmd.Flags().Float64Var(&session, "session", 0, "session usage threshold percent")
	cmd.Flags().Float64Var(&weekly, "weekly", 0, "weekly usage threshold percent")
	cmd.Flags().BoolVar(&independent, "independent", true, "apply the weekly threshold separately")
	cmd.Flags().BoolVar(&switchOnRateLimit, "on-rate-limit", true, "switch when the active account is rate-limited")
	return cmd
}

func newForecastCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast <profile>",
		Short: "Project when a profile's session and weekly windows run out",
		Long: `Estimate how fast each usage window is filling from the recorded usage reports
and whether it will be exhausted before it resets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := rt.mgr.Projection(args[0])
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, proj)
			}
			for _, w := range []*models.WindowProjection{proj.Session, proj.Weekly} {
				rt.printf(cmd, "%-8s %-8s %6.1f%% used  %5.1f%%/h  %s (%s confidence)\n",
					w.Window, w.Status, w.CurrentPercent, w.RatePerHour, outlook(w), w.Confidence)
			}
			return nil
		},
	}
}

func outlook(w *models.WindowProjection) string {
	switch {
	case w.Status == models.ProjectionUnknown && w.ExhaustAt.IsZero():
		return "not enough data"
	case w.WillExhaustBeforeReset:
		return "runs out " + w.ExhaustAt.Local().Format("Jan 2 15:04")
	case w.ExhaustAt.IsZero():
		return "not growing"
	case w.ResetAt.IsZero():
		return "runs out " + w.ExhaustAt.Local().Format("Jan 2 15:04") + ", reset unknown"
	default:
		return "lasts until reset " + w.ResetAt.Local().Format("Jan 2 15:04")
	}
}
