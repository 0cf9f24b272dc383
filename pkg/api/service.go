package api

import (
	"context"

	"fetchbridge/internal/service"
	"fetchbridge/pkg/model"
)

// Options 服务依赖（处理器、网络栈、记录器、日志）
type Options = service.Options

// Service 服务接口
type Service interface {
	// StartSession 启动会话
	StartSession(cfg model.SessionConfig) (model.SessionID, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error

	// AttachTarget 附加目标
	AttachTarget(id model.SessionID, target model.TargetID) error

	// DetachTarget 分离目标
	DetachTarget(id model.SessionID) error

	// ListTargets 列出目标
	ListTargets(ctx context.Context, id model.SessionID) ([]model.TargetInfo, error)

	// EnableInterception 启用拦截
	EnableInterception(id model.SessionID) error

	// DisableInterception 禁用拦截
	DisableInterception(id model.SessionID) error

	// LoadRules 加载规则配置
	LoadRules(id model.SessionID, rs model.RuleSet) error

	// GetRuleStats 获取规则统计信息
	GetRuleStats(id model.SessionID) (model.EngineStats, error)

	// SubscribeEvents 订阅事件
	SubscribeEvents(id model.SessionID) (<-chan model.Event, error)
}

// NewService 创建并返回服务接口实现
func NewService(opts Options) Service {
	return service.New(opts)
}
