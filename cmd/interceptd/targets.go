package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fetchbridge/pkg/api"
	"fetchbridge/pkg/model"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the pages exposed by the DevTools endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc := api.NewService(api.Options{Logger: newLogger(cfg)})
		id, err := svc.StartSession(model.SessionConfig{DevToolsURL: cfg.Intercept.DevToolsURL})
		if err != nil {
			return err
		}
		defer svc.StopSession(id)

		targets, err := svc.ListTargets(cmd.Context(), id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tURL")
		for _, t := range targets {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.URL)
		}
		return w.Flush()
	},
}
