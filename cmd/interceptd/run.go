package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fetchbridge/internal/storage"
	"fetchbridge/pkg/api"
	"fetchbridge/pkg/eventhttp"
	"fetchbridge/pkg/model"
)

var (
	target      string
	noForward   bool
	withJournal bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attach to a page and intercept its requests until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		opts := api.Options{Logger: log, Handler: eventhttp.ForwardHandler}
		if noForward {
			opts.Handler = nil
		}
		if withJournal {
			j, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, log)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer j.Close()
			opts.Recorder = j
		}
		svc := api.NewService(opts)

		id, err := svc.StartSession(model.SessionConfig{
			DevToolsURL:      cfg.Intercept.DevToolsURL,
			Patterns:         cfg.Intercept.Patterns,
			ProcessTimeoutMS: cfg.Intercept.ProcessTimeoutMS,
			ForwardTimeoutMS: cfg.Intercept.ForwardTimeoutMS,
			ContinueOnIdle:   cfg.Intercept.ContinueOnIdle,
		})
		if err != nil {
			return err
		}
		defer svc.StopSession(id)

		if err := svc.LoadRules(id, cfg.Rules); err != nil {
			return err
		}
		t := target
		if t == "" {
			t = cfg.Intercept.Target
		}
		if err := svc.AttachTarget(id, model.TargetID(t)); err != nil {
			return fmt.Errorf("attach target: %w", err)
		}
		if err := svc.EnableInterception(id); err != nil {
			return fmt.Errorf("enable interception: %w", err)
		}

		events, err := svc.SubscribeEvents(id)
		if err != nil {
			return err
		}
		log.Info("拦截已启用", "sessionID", string(id), "devtools", cfg.Intercept.DevToolsURL)
		for {
			select {
			case <-cmd.Context().Done():
				st, _ := svc.GetRuleStats(id)
				log.Info("停止拦截", "total", st.Total, "matched", st.Matched)
				return svc.DisableInterception(id)
			case evt := <-events:
				log.Debug("事件", "type", evt.Type, "traceId", evt.TraceID, "url", evt.URL, "status", evt.StatusCode)
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&target, "target", "", "target id to attach (default: first page)")
	runCmd.Flags().BoolVar(&noForward, "no-forward", false, "leave requests no rule matched unresolved instead of forwarding them")
	runCmd.Flags().BoolVar(&withJournal, "journal", true, "record every exchange to the SQLite journal")
}
