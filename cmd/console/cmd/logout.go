package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		console, err := openConsole(cfg)
		if err != nil {
			return err
		}
		if console.Session.CurrentIdentity() == nil {
			pterm.Info.Println("Not logged in")
			return nil
		}
		if err := console.Session.Logout(cmd.Context()); err != nil {
			return err
		}
		pterm.Success.Println("Logged out")
		return nil
	},
}
