package cmd

import (
	"github.com/spf13/cobra"

	"github.com/s0up4200/alclient/assemblyline"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET an API path and print api_response",
	Long: `Send a GET request to an API path such as api/v4/alert/list/ and print the
api_response payload as JSON.

--filter takes the name of a filter from the config file or an expression,
e.g. 'priority == "HIGH" and hasValue(label, "phishing")', and keeps the
matching entries of a list response (or of the items of a search response).
--query projects the result through a jq expression.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "filter name or expression applied to list responses")
	getCmd.Flags().StringVarP(&queryExpr, "query", "q", "", "jq expression applied to the response")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	payload, err := assemblyline.Get(ctx, conn, args[0], assemblyline.ConvertInto[any]())
	if err != nil {
		return err
	}

	out, err := shape(ctx, filters, filterExpr, queryExpr, payload)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), out)
}
