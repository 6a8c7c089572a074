package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Qksidmx/skgraph/loadfmt"
	"github.com/Qksidmx/skgraph/request"
	"github.com/Qksidmx/skgraph/schema"
	"github.com/Qksidmx/skgraph/skg"
)

var (
	loadLabel        string
	loadFile         string
	loadIgnoreHeader bool
	loadWeighted     bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk-load a CSV file of edges into an already-declared label",
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

		f, err := os.Open(loadFile)
		if err != nil {
			return err
		}
		defer f.Close()

		sc := &schema.MetaAttributes{Label: loadLabel, IsWeighted: loadWeighted}
		parser := loadfmt.CSVEdgeParser{IgnoreHeader: loadIgnoreHeader}
		n := 0
		err = parser.Parse(f, loadLabel, sc, func(req request.EdgeRequest) error {
			n++
			return h.AddEdge(req)
		})
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d edges into %s\n", n, loadLabel)

		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadLabel, "label", "", "edge label to load into (required)")
	loadCmd.Flags().StringVar(&loadFile, "file", "", "CSV file of src,dst rows (required)")
	loadCmd.Flags().BoolVar(&loadIgnoreHeader, "ignore-header", false, "skip the file's first line")
	loadCmd.Flags().BoolVar(&loadWeighted, "weighted", false, "rows carry a weight column after dst")
	_ = loadCmd.MarkFlagRequired("label")
	_ = loadCmd.MarkFlagRequired("file")
}
