package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/alclient/assemblyline"
)

var requestData string

var postCmd = &cobra.Command{
	Use:     "post <path>",
	Short:   "POST a JSON body to an API path",
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runWrite(http.MethodPost),
}

var putCmd = &cobra.Command{
	Use:     "put <path>",
	Short:   "PUT a JSON body to an API path",
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runWrite(http.MethodPut),
}

var deleteCmd = &cobra.Command{
	Use:     "delete <path>",
	Short:   "DELETE an API path",
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeApp,
	RunE:    runWrite(http.MethodDelete),
}

func init() {
	for _, c := range []*cobra.Command{postCmd, putCmd, deleteCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVarP(&queryExpr, "query", "q", "", "jq expression applied to the response")
	}
	for _, c := range []*cobra.Command{postCmd, putCmd} {
		c.Flags().StringVarP(&requestData, "data", "d", "", "JSON body, @file to read it from a file or @- for stdin")
	}
}

func runWrite(method string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		convert := assemblyline.ConvertInto[any]()

		var (
			payload any
			err     error
		)
		switch method {
		case http.MethodDelete:
			payload, err = assemblyline.Delete(ctx, conn, path, convert)
		default:
			body, berr := readBody(requestData, cmd.InOrStdin())
			if berr != nil {
				return berr
			}
			if method == http.MethodPut {
				payload, err = assemblyline.Put(ctx, conn, path, body, convert)
			} else {
				payload, err = assemblyline.Post(ctx, conn, path, body, convert)
			}
		}
		if err != nil {
			return err
		}

		out, err := shape(ctx, filters, "", queryExpr, payload)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
}

// readBody decodes --data. An empty value sends an empty JSON object.
func readBody(data string, stdin io.Reader) (any, error) {
	var raw []byte
	switch {
	case data == "":
		return map[string]any{}, nil
	case data == "@-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		raw = b
	default:
		raw = []byte(data)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("--data is not valid JSON: %w", err)
	}
	return body, nil
}
