package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/skg"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drain every root MemTable and run any compaction it triggers",
	RunE: func(_ *cobra.Command, _ []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}
		log := newLogger()
		defer func() { _ = log.Sync() }()

		h, err := skg.Open(path, engineOptions(log)...)
		if err != nil {
			return err
		}
		defer h.Close()

		if err := h.Flush(); err != nil {
			return err
		}
		fmt.Println("flushed", path)

		return nil
	},
}
