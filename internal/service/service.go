package service

import (
	"context"
	"errors"
	"fmt"

	"fetchbridge/internal/cdp"
	"fetchbridge/internal/handler"
	"fetchbridge/internal/logger"
	"fetchbridge/internal/rules"
	"fetchbridge/internal/session"
	"fetchbridge/pkg/eventhttp"
	"fetchbridge/pkg/model"
)

var ErrSessionNotFound = errors.New("session not found")

// Options 服务依赖
type Options struct {
	Logger   logger.Logger
	Handler  eventhttp.Handler
	Fetcher  eventhttp.Fetcher
	Recorder handler.Recorder
}

// Service 会话与拦截的编排
type Service struct {
	sessions *session.Manager
	opts     Options
	log      logger.Logger
}

// New 创建服务
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Service{
		sessions: session.NewManager(opts.Logger),
		opts:     opts,
		log:      opts.Logger,
	}
}

func (s *Service) get(id model.SessionID) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// StartSession 启动会话
func (s *Service) StartSession(cfg model.SessionConfig) (model.SessionID, error) {
	if cfg.DevToolsURL == "" {
		return "", errors.New("devtools url is required")
	}
	sess := s.sessions.Create(cfg)
	sess.Engine = rules.New(model.RuleSet{})
	d := handler.New(handler.Config{
		Engine:           sess.Engine,
		Handler:          s.opts.Handler,
		Fetcher:          s.opts.Fetcher,
		Recorder:         s.opts.Recorder,
		Events:           sess.Events,
		ProcessTimeoutMS: cfg.ProcessTimeoutMS,
		ForwardTimeoutMS: cfg.ForwardTimeoutMS,
		Logger:           s.log,
	})
	sess.Manager = cdp.New(cdp.Config{
		DevToolsURL:    cfg.DevToolsURL,
		Session:        sess.ID,
		Patterns:       cfg.Patterns,
		ContinueOnIdle: cfg.ContinueOnIdle,
		Dispatcher:     d,
		Logger:         s.log,
	})
	return sess.ID, nil
}

// StopSession 停止会话
func (s *Service) StopSession(id model.SessionID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	err = sess.Manager.Detach()
	s.sessions.Delete(id)
	return err
}

// AttachTarget 附加目标
func (s *Service) AttachTarget(id model.SessionID, target model.TargetID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	return sess.Manager.AttachTarget(target)
}

// DetachTarget 分离目标
func (s *Service) DetachTarget(id model.SessionID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.SetEnabled(false)
	return sess.Manager.Detach()
}

// ListTargets 列出目标
func (s *Service) ListTargets(ctx context.Context, id model.SessionID) ([]model.TargetInfo, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sess.Manager.ListTargets(ctx)
}

// EnableInterception 启用拦截
func (s *Service) EnableInterception(id model.SessionID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	if err := sess.Manager.Enable(); err != nil {
		return err
	}
	sess.SetEnabled(true)
	return nil
}

// DisableInterception 禁用拦截
func (s *Service) DisableInterception(id model.SessionID) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.SetEnabled(false)
	return sess.Manager.Disable()
}

// LoadRules 加载规则配置
func (s *Service) LoadRules(id model.SessionID, rs model.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.Engine.Update(rs)
	s.log.Info("规则已加载", "sessionID", string(id), "count", len(rs.Rules))
	return nil
}

// GetRuleStats 获取规则统计信息
func (s *Service) GetRuleStats(id model.SessionID) (model.EngineStats, error) {
	sess, err := s.get(id)
	if err != nil {
		return model.EngineStats{}, err
	}
	st := sess.Engine.Stats()
	return model.EngineStats{Total: st.Total, Matched: st.Matched}, nil
}

// SubscribeEvents 订阅事件
func (s *Service) SubscribeEvents(id model.SessionID) (<-chan model.Event, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sess.Events, nil
}
