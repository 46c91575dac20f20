package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var funcsCmd = &cobra.Command{
	Use:   "funcs",
	Short: "List the helper functions available inside templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := newManager()
		if err != nil {
			return err
		}
		for _, name := range tm.FuncNames() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(funcsCmd)
}
