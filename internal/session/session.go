package session

import (
	"sync"

	"fetchbridge/internal/cdp"
	"fetchbridge/internal/rules"
	"fetchbridge/pkg/model"
)

// Session 一个业务会话：一个浏览器连接及其事件通道
type Session struct {
	ID      model.SessionID
	Config  model.SessionConfig
	Manager *cdp.Manager
	Engine  *rules.Engine
	Events  chan model.Event

	mu      sync.Mutex
	enabled bool
}

// New 创建会话
func New(id model.SessionID, cfg model.SessionConfig) *Session {
	return &Session{
		ID:     id,
		Config: cfg,
		Events: make(chan model.Event, 256),
	}
}

func (s *Session) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
}

func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}
