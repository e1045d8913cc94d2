package cmd

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-card-console/identity"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var verify bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		console, err := openConsole(cfg)
		if err != nil {
			return err
		}
		if !console.Session.IsAuthenticated() {
			return errors.New("not logged in")
		}

		id := console.Session.CurrentIdentity()
		tokens, _ := console.Session.Tokens()

		pterm.DefaultSection.Println("Session")
		pterm.Info.Printf("User: %s (%s)\n", id.DisplayName, id.Username)
		pterm.Info.Printf("Role: %s\n", id.Role)
		pterm.Info.Printf("Token expires at: %s\n", tokens.ExpiresAt().Format(time.RFC1123))
		pterm.Info.Printf("Session timeout in: %s\n", console.Session.Monitor().Remaining().Round(time.Second))

		pterm.DefaultSection.Println("Permissions")
		if err := pterm.DefaultTable.WithHasHeader().WithData(permissionRows(id)).Render(); err != nil {
			return err
		}

		if verify {
			if _, err := console.Provider.Profile(cmd.Context()); err != nil {
				return userFacing(err)
			}
			pterm.Success.Println("Session accepted by the server")
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&verify, "verify", false, "Check the session against the server")
}

func permissionRows(id *identity.Identity) pterm.TableData {
	rows := pterm.TableData{{"PERMISSION", "GRANTED"}}
	for _, perm := range identity.PermissionsForRole(identity.RoleAdmin).Slice() {
		granted := "no"
		if id.Permissions.Has(perm) {
			granted = "yes"
		}
		rows = append(rows, []string{strings.ToLower(string(perm)), granted})
	}
	return rows
}

// userFacing prefers the classified message over the wrapped error chain.
func userFacing(err error) error {
	var failure *resilience.Error
	if apperrors.As(err, &failure) {
		return errors.New(failure.Message)
	}
	if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
		return errors.New("invalid username or password")
	}
	return err
}
