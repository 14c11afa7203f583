package cmd

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var cmdIssuer = &cobra.Command{
	Use:   "issuer",
	Short: "Register and initialize issuers.",
}

var cmdIssuerRegister = &cobra.Command{
	Use:   "register <holder-id> <name>",
	Short: "Register an issuer owned by holder-id.",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		holderID, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "holder-id")
		}
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()

		issuer, err := a.Issuance.RegisterIssuer(c.Context(), holderID, args[1])
		if err != nil {
			return err
		}
		return dumpJSON(c, issuer)
	},
}

var (
	initPrice  string
	initRating string
)

var cmdIssuerInit = &cobra.Command{
	Use:   "init <issuer-id> <total-amount>",
	Short: "Create the issuer's supply and split it between the platform and the issuer.",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		issuerID, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "issuer-id")
		}
		total, err := decimal.NewFromString(args[1])
		if err != nil || !total.IsInteger() {
			return errors.Errorf("total-amount must be a whole number, got %q", args[1])
		}
		price, err := decimal.NewFromString(initPrice)
		if err != nil {
			return errors.Wrap(err, "--price")
		}

		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()

		issuer, err := a.Issuance.InitIssuerSupply(c.Context(), issuerID, total.IntPart(), price, initRating)
		if err != nil {
			return err
		}
		return dumpJSON(c, issuer)
	},
}

func init() {
	cmdIssuerInit.Flags().StringVar(&initPrice, "price", "", "initial sale price per shard")
	cmdIssuerInit.Flags().StringVar(&initRating, "rating", "", "issuer rating, e.g. AA")
	_ = cmdIssuerInit.MarkFlagRequired("price")
	cmdIssuer.AddCommand(cmdIssuerRegister, cmdIssuerInit)
}
