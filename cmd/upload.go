package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/concierge-labs/concierge/internal/api"
	"github.com/concierge-labs/concierge/internal/model"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files to decentralized storage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addToVault, _ := cmd.Flags().GetBool("add-to-vault")

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items := make([]api.UploadItem, len(args))
		for i, path := range args {
			items[i] = api.UploadItem{
				Name: filepath.Base(path),
				Read: func() ([]byte, error) {
					data, err := os.ReadFile(path)
					if err != nil {
						return nil, eris.Wrapf(err, "read %s", path)
					}
					return data, nil
				},
			}
		}

		up := &api.Uploader{Storage: env.Storage, Vault: env.Vault, Concurrency: cfg.Storage.UploadConcurrency}
		uploaded, err := up.Upload(ctx, items, addToVault)
		if err != nil {
			return err
		}

		formatUploads(os.Stdout, uploaded)
		return nil
	},
}

func init() {
	uploadCmd.Flags().Bool("add-to-vault", false, "register newly uploaded files on the vault contract")
	rootCmd.AddCommand(uploadCmd)
}

// formatUploads writes a table of uploaded files to out.
func formatUploads(out io.Writer, files []model.UploadedFile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tROOT_HASH\tEXISTED\tVAULT_TX")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", f.FileName, f.RootHash, f.AlreadyExists, f.VaultTx)
	}
	_ = w.Flush()
}
