package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/concierge-labs/concierge/internal/model"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect vault records and stored file content",
}

var filesListCmd = &cobra.Command{
	Use:   "list [owner]",
	Short: "List vault records of an owner (default: the service account)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		owner := env.Broker.Account()
		if len(args) == 1 {
			if !common.IsHexAddress(args[0]) {
				return eris.Errorf("invalid owner address %q", args[0])
			}
			owner = args[0]
		}

		files, err := env.Vault.FilesByUser(ctx, owner)
		if err != nil {
			return eris.Wrap(err, "files list")
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files found.")
			return nil
		}
		formatVaultFiles(os.Stdout, files)
		return nil
	},
}

var filesCatCmd = &cobra.Command{
	Use:   "cat <root-hash>",
	Short: "Print the content of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// Only the gateway is needed here.
		content, err := newStorageClient(cfg.Storage).Download(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "files cat")
		}
		_, err = io.WriteString(os.Stdout, content)
		return err
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesCatCmd)
	rootCmd.AddCommand(filesCmd)
}

// formatVaultFiles writes a table of vault records to out.
func formatVaultFiles(out io.Writer, files []model.VaultFile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROOT_HASH\tCATEGORY\tINSIGHTS_CID\tADDED")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			f.RootHash, f.Category, f.InsightsCID, f.Timestamp.UTC().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
