package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meunomeok/leadtrack/internal/phone"
)

var validateCmd = &cobra.Command{
	Use:   "validate <phone>",
	Short: "Check one phone number for WhatsApp reachability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[0]
		digits := phone.Sanitize(raw)
		if !phone.IsValid(digits) {
			fmt.Printf("invalid: %q is not a full national number (%d digits)\n", raw, phone.NationalDigits)
			return nil
		}

		verdict := initChecker().Check(cmd.Context(), digits)
		fmt.Printf("number:  %s\n", phone.Format(digits))
		fmt.Printf("e164:    %s\n", phone.ToE164(digits))
		if verdict.OK {
			fmt.Println("verdict: reachable")
		} else {
			fmt.Println("verdict: not reachable")
		}
		if verdict.Message != "" {
			fmt.Printf("message: %s\n", verdict.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
