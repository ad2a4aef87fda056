package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/concierge-labs/concierge/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List inference services offered through the broker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		services, err := env.Selector.Services(ctx)
		if err != nil {
			return eris.Wrap(err, "list models")
		}
		if len(services) == 0 {
			fmt.Fprintln(os.Stderr, "No services found.")
			return nil
		}
		formatModels(os.Stdout, services)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

// formatModels writes a tabular list of services to out.
func formatModels(out io.Writer, services []model.Service) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL\tVERIFIABILITY\tMIN_UNITS")
	_, _ = fmt.Fprintln(w, "--------\t-----\t-------------\t---------")
	for _, s := range services {
		v := s.View()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Provider, v.Model, v.Verifiability, v.MinUnits)
	}
	_ = w.Flush()
}
