// Package cmd implements skgctl's cobra command tree. Every subcommand
// reads its tunables through viper, which lets a flag, an environment
// variable (SKGCTL_*), or a --config file all set the same setting.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Qksidmx/skgraph/skgoptions"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "skgctl",
	Short: "Inspect and drive an skgraph edge-storage database",
}

// Execute runs the command tree, returning the first error encountered.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (none is read unless this is set)")
	rootCmd.PersistentFlags().String("db", "", "database directory (required)")
	rootCmd.PersistentFlags().Int("mem-buffer-mb", 0, "MemTable flush threshold in MB (0 keeps the engine default)")
	rootCmd.PersistentFlags().Int("shard-size-mb", 0, "per-partition compaction threshold in MB (0 keeps the engine default)")
	rootCmd.PersistentFlags().Int("shard-split-factor", 0, "number of children a Split compaction produces (0 keeps the engine default)")
	rootCmd.PersistentFlags().Bool("mmap-read", true, "use mmap for the adjacency list and indexes; false uses pread/pwrite")

	_ = v.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("mem_buffer_mb", rootCmd.PersistentFlags().Lookup("mem-buffer-mb"))
	_ = v.BindPFlag("shard_size_mb", rootCmd.PersistentFlags().Lookup("shard-size-mb"))
	_ = v.BindPFlag("shard_split_factor", rootCmd.PersistentFlags().Lookup("shard-split-factor"))
	_ = v.BindPFlag("mmap_read", rootCmd.PersistentFlags().Lookup("mmap-read"))

	rootCmd.AddCommand(createCmd, createLabelCmd, addEdgeCmd, getEdgeCmd, loadCmd, flushCmd)
}

func initConfig() {
	v.SetEnvPrefix("skgctl")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		_ = v.ReadInConfig()
	}
}

// dbPath returns the --db flag's value, erroring if it was never set.
func dbPath() (string, error) {
	path := v.GetString("db")
	if path == "" {
		return "", fmt.Errorf("skgctl: --db is required")
	}

	return path, nil
}

// engineOptions builds the skgoptions.Option slice viper's bound settings
// imply, skipping any value left at its zero default so the engine's own
// defaults apply.
func engineOptions(log *zap.Logger) []skgoptions.Option {
	opts := []skgoptions.Option{skgoptions.WithLogger(log)}

	if mb := v.GetInt("mem_buffer_mb"); mb > 0 {
		opts = append(opts, skgoptions.WithMemBufferMB(mb))
	}
	if mb := v.GetInt("shard_size_mb"); mb > 0 {
		opts = append(opts, skgoptions.WithShardSizeMB(mb))
	}
	if n := v.GetInt("shard_split_factor"); n > 0 {
		opts = append(opts, skgoptions.WithShardSplitFactor(n))
	}
	if v.GetBool("mmap_read") {
		opts = append(opts, skgoptions.WithMmapRead())
	} else {
		opts = append(opts, skgoptions.WithRawRead())
	}

	return opts
}

func newLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}

	return log
}
