package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/skg"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new, empty database at --db",
	RunE: func(_ *cobra.Command, _ []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}
		log := newLogger()
		defer func() { _ = log.Sync() }()

		if err := skg.Create(path, engineOptions(log)...); err != nil {
			return err
		}
		fmt.Println("created", path)

		return nil
	},
}
