package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/concierge-labs/concierge/internal/model"
)

var insightsCmd = &cobra.Command{
	Use:   "insights <root-hash> <file>",
	Short: "Compute and record insights for a stored file",
	Long: "Runs the insight pipeline for a file already uploaded under root-hash. " +
		"The content is read from the local file, or fetched from the storage gateway with --fetch.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fetch, _ := cmd.Flags().GetBool("fetch")

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.InsightRequest{RootHash: args[0], FileName: filepath.Base(args[1])}
		if fetch {
			req.Content, err = env.Storage.Download(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "fetch content")
			}
		} else {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return eris.Wrapf(err, "read %s", args[1])
			}
			req.Content = string(data)
		}

		result, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "insights")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	insightsCmd.Flags().Bool("fetch", false, "fetch the content from the storage gateway instead of the local file")
	rootCmd.AddCommand(insightsCmd)
}
