package cmd

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdBalance = &cobra.Command{
	Use:   "balance <issuer-id> <holder-id>",
	Short: "Print a holder's total, reserved and available shards.",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		issuerID, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "issuer-id")
		}
		holderID, err := uuid.Parse(args[1])
		if err != nil {
			return errors.Wrap(err, "holder-id")
		}
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()

		bal, err := a.Ledger.GetBalance(c.Context(), issuerID, holderID)
		if err != nil {
			return err
		}
		return dumpJSON(c, bal)
	},
}
