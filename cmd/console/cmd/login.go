package cmd

import (
	"strings"

	"github.com/jrsteele09/go-card-console/provider"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	username string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and persist the session",
	Long: `Signs in with a username and password. The session is written to the
credential store and picked up by later commands and by "serve".

Missing credentials are prompted for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		console, err := openConsole(cfg)
		if err != nil {
			return err
		}

		if strings.TrimSpace(username) == "" {
			if username, err = pterm.DefaultInteractiveTextInput.Show("Username"); err != nil {
				return errors.Wrap(err, "failed to read username")
			}
		}
		if password == "" {
			if password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password"); err != nil {
				return errors.Wrap(err, "failed to read password")
			}
		}

		spinner, _ := pterm.DefaultSpinner.Start("Signing in...")
		id, err := console.Session.Login(cmd.Context(), provider.Credentials{Username: username, Password: password})
		if err != nil {
			spinner.Fail("Login failed")
			return userFacing(err)
		}
		spinner.Success("Login successful")

		pterm.Info.Printf("Signed in as %s (%s)\n", id.DisplayName, id.Role)
		pterm.Info.Printf("Landing page: %s\n", console.Guard.LandingRoute(&id))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Password")
}
