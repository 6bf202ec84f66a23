package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/alclient/assemblyline"
)

var fetchInfo bool

// hashCmd represents the hash command
var hashCmd = &cobra.Command{
	Use:   "hash <sha256>...",
	Short: "Validate and normalise sha256 identifiers",
	Long: `Check that each argument is a sha256 hex digest and print it in the lowercase
form the API expects. With --info, also fetch the file information for each
hash from the server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().BoolVar(&fetchInfo, "info", false, "fetch file information from the server")
}

func runHash(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	hashes := make([]assemblyline.Sha256, 0, len(args))
	var errs []error
	for _, arg := range args {
		h, err := assemblyline.ParseSha256(arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		hashes = append(hashes, h)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if !fetchInfo {
		for _, h := range hashes {
			fmt.Fprintln(w, h)
		}
		return nil
	}

	if err := initializeApp(cmd, args); err != nil {
		return err
	}

	for _, h := range hashes {
		info, err := assemblyline.Get(cmd.Context(), conn, "api/v4/file/info/"+h.String()+"/", assemblyline.ConvertMap)
		if err != nil {
			var apiErr *assemblyline.ClientError
			if errors.As(err, &apiErr) && apiErr.IsNotFound() {
				logger.Warn().Str("sha256", h.String()).Msg("File not found")
				continue
			}
			return err
		}
		if err := printJSON(w, info); err != nil {
			return err
		}
	}

	return nil
}
