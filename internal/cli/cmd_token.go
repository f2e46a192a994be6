package cli

import (
	"github.com/spf13/cobra"

	"github.com/j-veylop/agent-profiles/internal/models"
)

func newTokenCmd(rt *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the long-lived OAuth token of a profile",
	}

	var fromFlag string
	set := &cobra.Command{
		Use:   "set <profile>",
		Short: "Store an encrypted token for a profile",
		Long: `Store a long-lived OAuth token. The token is read from --token, or prompted
for without echo, or read from the first line of stdin when piped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := fromFlag
			if token == "" {
				var err error
				if token, err = rt.readSecret(cmd, "Token: "); err != nil {
					return err
				}
			}

			if err := rt.mgr.Profiles().SetToken(args[0], token); err != nil {
				return err
			}
			rt.printf(cmd, "Token stored for %s (valid for %d days)\n", args[0], int(models.TokenLifetime.Hours()/24))
			return nil
		},
	}
	set.Flags().StringVar(&fromFlag, "token", "", "token value (prefer the prompt to keep it out of shell history)")

	clear := &cobra.Command{
		Use:   "clear <profile>",
		Short: "Remove the stored token of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.mgr.Profiles().ClearToken(args[0]); err != nil {
				return err
			}
			rt.printf(cmd, "Token cleared for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, clear)
	return cmd
}

// apiEntry is the JSON shape of an API-key profile. The key is never printed.
type apiEntry struct {
	Models  map[string]string `json:"models,omitempty"`
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	BaseURL string            `json:"baseUrl,omitempty"`
	HasKey  bool              `json:"hasKey"`
	Active  bool              `json:"active"`
}

func newAPICmd(rt *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Manage API-key profiles",
	}

	var (
		baseURL string
		key     string
		aliases map[string]string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an API-key profile",
		Long: `Add an API-key profile. The key is read from --key, or prompted for without
echo, or read from the first line of stdin when piped.

Example:
  agent-profiles api add Proxy --base-url https://proxy.example --model opus=claude-opus-4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := key
			if apiKey == "" {
				var err error
				if apiKey, err = rt.readSecret(cmd, "API key: "); err != nil {
					return err
				}
			}

			p, err := rt.mgr.AddAPIProfile(args[0], baseURL, apiKey, aliases)
			if err != nil {
				return err
			}
			rt.printf(cmd, "Added API profile %s (%s)\n", p.Name, models.APIKeyAccount(p.ID))
			return nil
		},
	}
	add.Flags().StringVar(&baseURL, "base-url", "", "provider base URL")
	add.Flags().StringVar(&key, "key", "", "API key (prefer the prompt to keep it out of shell history)")
	add.Flags().StringToStringVar(&aliases, "model", nil, "model alias mapping, alias=model (repeatable)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API-key profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := rt.mgr.APIProfiles()
			activeID := store.ActiveID()

			profiles := store.List()
			entries := make([]apiEntry, len(profiles))
			for i, p := range profiles {
				entries[i] = apiEntry{
					ID:      p.ID,
					Name:    p.Name,
					BaseURL: p.BaseURL,
					Models:  p.Models,
					HasKey:  p.HasKey(),
					Active:  p.ID == activeID,
				}
			}
			if rt.jsonOut {
				return rt.printJSON(cmd, entries)
			}
			if len(entries) == 0 {
				rt.printf(cmd, "No API profiles\n")
			}
			for _, e := range entries {
				marker := " "
				if e.Active {
					marker = "*"
				}
				rt.printf(cmd, "%s %s\t%s\t%s\n", marker, e.ID, e.Name, e.BaseURL)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an API-key profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.mgr.DeleteAccount(models.APIKeyAccount(args[0])); err != nil {
				return err
			}
			rt.printf(cmd, "Removed API profile %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}
