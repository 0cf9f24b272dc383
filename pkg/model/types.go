package model

import (
	"fmt"
)

type SessionID string
type TargetID string
type RuleID string

type SessionConfig struct {
	DevToolsURL      string   `json:"devToolsURL"`
	Patterns         []string `json:"patterns"`
	ProcessTimeoutMS int      `json:"processTimeoutMS"`
	ForwardTimeoutMS int      `json:"forwardTimeoutMS"`
	ContinueOnIdle   bool     `json:"continueOnIdle"`
}

type EngineStats struct {
	Total   int64 `json:"total"`
	Matched int64 `json:"matched"`
}

type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}

// Event 拦截事件通知
type Event struct {
	Type       string    `json:"type"` // intercepted / resolved / forwarded / unresolved / failed
	Session    SessionID `json:"session"`
	Target     TargetID  `json:"target"`
	Rule       *RuleID   `json:"rule,omitempty"`
	TraceID    string    `json:"traceId"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

type ActionType string

const (
	ActionRespond    ActionType = "respond"
	ActionJSON       ActionType = "json"
	ActionError      ActionType = "error"
	ActionEnd        ActionType = "end"
	ActionAttachment ActionType = "attachment"
	ActionForward    ActionType = "forward"
)

// Action 规则命中后对响应构建器执行的行为
type Action struct {
	Type        ActionType        `yaml:"type" json:"type"`
	Status      int               `yaml:"status" json:"status,omitempty"`
	Headers     map[string]string `yaml:"headers" json:"headers,omitempty"`
	Body        string            `yaml:"body" json:"body,omitempty"`
	JSON        any               `yaml:"json" json:"json,omitempty"`
	Message     any               `yaml:"message" json:"message,omitempty"`
	ContentType string            `yaml:"contentType" json:"contentType,omitempty"`
	DelayMS     int               `yaml:"delayMS" json:"delayMS,omitempty"`
}

// Condition 匹配条件
type Condition struct {
	Type    string   `yaml:"type" json:"type"` // url / method / header / query / text / json
	Mode    string   `yaml:"mode" json:"mode,omitempty"`
	Pattern string   `yaml:"pattern" json:"pattern,omitempty"`
	Values  []string `yaml:"values" json:"values,omitempty"`
	Key     string   `yaml:"key" json:"key,omitempty"`
	Path    string   `yaml:"path" json:"path,omitempty"`
	Op      string   `yaml:"op" json:"op,omitempty"`
	Value   string   `yaml:"value" json:"value,omitempty"`
}

type Match struct {
	AllOf  []Condition `yaml:"allOf" json:"allOf,omitempty"`
	AnyOf  []Condition `yaml:"anyOf" json:"anyOf,omitempty"`
	NoneOf []Condition `yaml:"noneOf" json:"noneOf,omitempty"`
}

type Rule struct {
	ID       RuleID `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority"`
	Mode     string `yaml:"mode" json:"mode,omitempty"` // short_circuit
	Match    Match  `yaml:"match" json:"match"`
	Action   Action `yaml:"action" json:"action"`
}

type RuleSet struct {
	Version string `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Validate 校验规则集
func (rs RuleSet) Validate() error {
	seen := make(map[RuleID]struct{}, len(rs.Rules))
	for i, r := range rs.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule #%d: missing id", i)
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
		switch r.Action.Type {
		case ActionRespond, ActionJSON, ActionError, ActionEnd, ActionAttachment, ActionForward:
		default:
			return fmt.Errorf("rule %s: unknown action type %q", r.ID, r.Action.Type)
		}
	}
	return nil
}
