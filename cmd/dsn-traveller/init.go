// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/florianjacob/dsn-traveller/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "write an annotated example configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteExample(configPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s. Edit it before the first run.\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
