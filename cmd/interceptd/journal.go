package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"fetchbridge/internal/storage"
)

var (
	journalLimit int
	journalTrace string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recorded exchanges as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		j, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, newLogger(cfg))
		if err != nil {
			return err
		}
		defer j.Close()

		var list []storage.Exchange
		if journalTrace != "" {
			list, err = j.ByTrace(cmd.Context(), journalTrace)
		} else {
			list, err = j.Recent(cmd.Context(), journalLimit)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of most recent exchanges")
	journalCmd.Flags().StringVar(&journalTrace, "trace", "", "only exchanges with this trace id")
}
