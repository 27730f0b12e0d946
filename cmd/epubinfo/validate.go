package main

import (
	"os"

	"github.com/spf13/cobra"

	epub "github.com/simp-lee/epubingest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.epub>",
	Short: "Report structural problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if err := epub.NewAdaptiveParser(e.opts...).Validate(cmd.Context(), f); err != nil {
			return err
		}
		cmd.Println("epubinfo validate: ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
