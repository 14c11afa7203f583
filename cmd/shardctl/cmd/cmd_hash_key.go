package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var cmdHashKey = &cobra.Command{
	Use:   "hash-key <admin-key>",
	Short: "Print the bcrypt hash to put in ADMIN_KEY_HASH.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if len(args[0]) < 16 {
			return errors.New("admin key must be at least 16 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), string(hash))
		return nil
	},
}
