package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/agent-profiles/internal/app"
	"github.com/j-veylop/agent-profiles/internal/ui/tabs/history"
	"github.com/j-veylop/agent-profiles/internal/ui/tabs/info"
	"github.com/j-veylop/agent-profiles/internal/ui/tabs/profiles"
)

func newTUICmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive account view",
		Long: `Open the interactive account view.

Keyboard:
  1-3, Tab        Switch between tabs (Profiles, History, Info)
  Enter           Switch to the highlighted account
  b               Switch to the best available account
  n / d           Add a profile / delete the highlighted account
  r               Refresh
  ?               Toggle help
  q, Ctrl+C       Quit`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			model := app.NewModel(rt.mgr)

			state := model.GetState()
			model.SetTabs([]app.Tab{
				profiles.New(state),
				history.New(state, rt.mgr),
				info.New(state, rt.cfg, rt.mgr),
			})

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			p := tea.NewProgram(model, tea.WithAltScreen())

			go func() {
				if _, ok := <-sigChan; ok {
					p.Send(tea.Quit())
				}
			}()

			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running TUI: %w", err)
			}
			return nil
		},
	}
}
