package cmd

import (
	"github.com/spf13/cobra"
)

var cmdSweep = &cobra.Command{
	Use:   "sweep",
	Short: "Release expired cart holds and alternative offers once.",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Sweeper.RunOnce(c.Context())
		if err != nil {
			return err
		}
		return dumpJSON(c, res)
	},
}
