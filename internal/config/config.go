package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fetchbridge/pkg/model"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level   string   `yaml:"level"`
		Writer  []string `yaml:"writer"`
		File    string   `yaml:"file"`
		MaxSize int      `yaml:"maxSize"`
	} `yaml:"log"`

	Intercept struct {
		DevToolsURL      string   `yaml:"devToolsURL"`
		Target           string   `yaml:"target"`
		Patterns         []string `yaml:"patterns"`
		ProcessTimeoutMS int      `yaml:"processTimeoutMS"` // 单次事件的处理上限，转发超时同样受它约束
		ForwardTimeoutMS int      `yaml:"forwardTimeoutMS"`
		ContinueOnIdle   bool     `yaml:"continueOnIdle"` // 处理器未交付时放行原请求
	} `yaml:"intercept"`

	Rules model.RuleSet `yaml:"rules"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Sqlite.Dsn = "db.sqlite3"
	cfg.Sqlite.Prefix = "fetchbridge_"
	cfg.Log.Level = "debug"
	cfg.Log.Writer = []string{"console", "file"}
	cfg.Log.File = "logs/fetchbridge.log"
	cfg.Log.MaxSize = 50
	cfg.Intercept.DevToolsURL = "http://127.0.0.1:9222"
	cfg.Intercept.Patterns = []string{"*"}
	cfg.Intercept.ProcessTimeoutMS = 15000
	cfg.Intercept.ForwardTimeoutMS = 10000
	cfg.Intercept.ContinueOnIdle = true
	return cfg
}

// Load 读取 YAML 配置，未给出的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
