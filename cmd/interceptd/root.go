package main

import (
	"github.com/spf13/cobra"

	"fetchbridge/internal/config"
	"fetchbridge/internal/logger"
)

var (
	configFile  string
	devToolsURL string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "interceptd",
	Short: "Intercept browser requests over the DevTools Fetch domain.",
	Long: `interceptd attaches to a browser page over the Chrome DevTools Protocol,
pauses matching requests and answers them from rules or the live network.

Start the browser with --remote-debugging-port=9222 and run 'interceptd run'.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&devToolsURL, "devtools", "", "DevTools HTTP endpoint, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")

	rootCmd.AddCommand(runCmd, targetsCmd, journalCmd)
}

// loadConfig 读取配置并应用命令行覆盖项
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if devToolsURL != "" {
		cfg.Intercept.DevToolsURL = devToolsURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writer:  cfg.Log.Writer,
		File:    cfg.Log.File,
		MaxSize: cfg.Log.MaxSize,
	})
}
