package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/alclient/assemblyline"
)

var showSession bool

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:     "ping",
	Short:   "Test the connection to Assemblyline",
	Long:    `Log in to the configured server and display the server version and the authenticated user.`,
	PreRunE: initializeApp,
	RunE:    runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().BoolVar(&showSession, "session", false, "log in again and print the session details")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Testing connection to Assemblyline at %s...\n", conn.BaseURL())
	fmt.Fprintln(w, "✓ Connection successful!")

	whoami, err := assemblyline.Get(ctx, conn, "api/v4/user/whoami/", assemblyline.ConvertMap)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	fmt.Fprintf(w, "\nServer:\n")
	if raw, ok := conn.ServerVersion(); ok {
		fmt.Fprintf(w, "- Version: %s", raw)
		if v, err := conn.SemVer(); err == nil {
			fmt.Fprintf(w, " (%s)", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "- Authentication: %s\n", cfg.Auth.Method)
	if username, ok := whoami["username"]; ok {
		fmt.Fprintf(w, "- User: %v\n", username)
	}
	if name, ok := whoami["name"]; ok {
		fmt.Fprintf(w, "- Name: %v\n", name)
	}

	if showSession {
		details, err := conn.Authenticate(ctx)
		if err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}
		fmt.Fprintf(w, "\nSession:\n")
		return printJSON(w, details)
	}

	return nil
}
