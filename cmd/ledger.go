package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/concierge-labs/concierge/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the prepaid broker ledger",
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Show the ledger balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		bal, exists, err := env.Account.Check(ctx)
		if err != nil {
			return eris.Wrap(err, "ledger check")
		}
		if !exists {
			fmt.Fprintln(os.Stderr, "No ledger exists for", env.Broker.Account())
			return nil
		}
		formatBalance(os.Stdout, bal)
		return nil
	},
}

var ledgerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open the ledger with an initial deposit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		amount, _ := cmd.Flags().GetString("amount")
		wei, err := ledger.ParseOG(amount)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		bal, err := env.Account.Create(ctx, wei)
		if err != nil {
			return eris.Wrap(err, "ledger create")
		}
		formatBalance(os.Stdout, bal)
		return nil
	},
}

var ledgerDepositCmd = &cobra.Command{
	Use:   "deposit <amount-og>",
	Short: "Deposit funds into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wei, err := ledger.ParseOG(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		bal, err := env.Account.Deposit(ctx, wei)
		if err != nil {
			return eris.Wrap(err, "ledger deposit")
		}
		formatBalance(os.Stdout, bal)
		return nil
	},
}

var ledgerFundCmd = &cobra.Command{
	Use:   "fund <provider> <amount-og>",
	Short: "Transfer funds to a provider sub-account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return eris.Errorf("invalid provider address %q", args[0])
		}
		wei, err := ledger.ParseOG(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		bal, err := env.Funder.FundProvider(ctx, args[0], wei)
		if err != nil {
			return eris.Wrap(err, "ledger fund")
		}
		formatBalance(os.Stdout, bal)
		return nil
	},
}

func init() {
	ledgerCreateCmd.Flags().String("amount", "0.1", "initial deposit in OG")

	ledgerCmd.AddCommand(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerCreateCmd)
	ledgerCmd.AddCommand(ledgerDepositCmd)
	ledgerCmd.AddCommand(ledgerFundCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// formatBalance writes a ledger balance in OG and wei to out.
func formatBalance(out io.Writer, bal ledger.Balance) {
	view := bal.Ledger.View()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Owner:\t%s\n", view.Owner)
	_, _ = fmt.Fprintf(w, "Total:\t%s OG\t(%s wei)\n", ledger.WeiToOG(bal.Ledger.Total).String(), view.Total)
	_, _ = fmt.Fprintf(w, "Locked:\t%s OG\t(%s wei)\n", ledger.WeiToOG(bal.Ledger.Locked).String(), view.Locked)
	_, _ = fmt.Fprintf(w, "Available:\t%s OG\t(%s wei)\n", ledger.WeiToOG(bal.Available).String(), view.Available)
	if bal.AvailableUnits != nil {
		_, _ = fmt.Fprintf(w, "Available units:\t%s\n", bal.AvailableUnits.String())
	}
	if bal.Clamped {
		_, _ = fmt.Fprintln(w, "Warning:\tlocked exceeds total; available clamped to total")
	}
	_ = w.Flush()
}
