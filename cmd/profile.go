// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"sqlwb/cli/internal/keychain"
	"sqlwb/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved connection profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connection profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		names, err := km.ListProfiles()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			pterm.Info.Println("No profiles saved. Run: sqlwb connect --name <profile>")
			return nil
		}

		current := env.profileName()
		data := pterm.TableData{{"", "Profile", "Connection"}}
		for _, name := range names {
			conn, err := km.LoadProfile(name)
			if err != nil {
				conn = "(unreadable: " + err.Error() + ")"
			}
			data = append(data, []string{lo.Ternary(name == current, "*", ""), name, logging.Mask(conn)})
		}
		return renderTable(cmd, data)
	},
}

var deleteAll, deleteYes bool

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>... | --all",
	Short: "Delete saved connection profiles",
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteAll != (len(args) == 0) {
			return fmt.Errorf("pass profile names or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if deleteAll {
			if !deleteYes {
				ok, _ := pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show("Delete every saved profile?")
				if !ok {
					return nil
				}
			}
			if err := km.ClearAll(); err != nil {
				return fmt.Errorf("delete profiles: %w", err)
			}
			pterm.Success.Println("All profiles deleted")
			return nil
		}
		for _, name := range args {
			if err := km.DeleteProfile(name); err != nil {
				return fmt.Errorf("delete profile %s: %w", name, err)
			}
			pterm.Success.Printfln("Profile %q deleted", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd, profileDeleteCmd)
	profileDeleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every saved profile")
	profileDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
}
