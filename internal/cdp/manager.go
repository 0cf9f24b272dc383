package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/rpcc"

	adapter "fetchbridge/internal/adapter/cdp"
	"fetchbridge/internal/handler"
	"fetchbridge/internal/logger"
	"fetchbridge/pkg/model"
	"fetchbridge/pkg/traffic"
)

const fulfillTimeout = 5 * time.Second

var (
	ErrNotAttached = errors.New("not attached")
	ErrNoTarget    = errors.New("no target")
)

// Config 管理器配置
type Config struct {
	DevToolsURL    string
	Session        model.SessionID
	Patterns       []string
	ContinueOnIdle bool
	Dispatcher     *handler.Dispatcher
	Logger         logger.Logger
}

// Manager 连接浏览器目标，把 Fetch 域的拦截事件交给分发器
type Manager struct {
	devtoolsURL    string
	session        model.SessionID
	patterns       []string
	continueOnIdle bool
	dispatcher     *handler.Dispatcher
	log            logger.Logger

	mu      sync.Mutex
	target  model.TargetID
	conn    *rpcc.Conn
	client  *cdp.Client
	ctx     context.Context
	cancel  context.CancelFunc
	enabled atomic.Bool
	wg      sync.WaitGroup
}

func New(cfg Config) *Manager {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	d := cfg.Dispatcher
	if d == nil {
		d = handler.New(handler.Config{Logger: l})
	}
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	return &Manager{
		devtoolsURL:    cfg.DevToolsURL,
		session:        cfg.Session,
		patterns:       patterns,
		continueOnIdle: cfg.ContinueOnIdle,
		dispatcher:     d,
		log:            l.With("session", string(cfg.Session)),
	}
}

// Dispatcher 返回事件分发器
func (m *Manager) Dispatcher() *handler.Dispatcher { return m.dispatcher }

// ListTargets 列出浏览器中的页面目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	current := m.target
	m.mu.Unlock()

	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, model.TargetInfo{
			ID:        model.TargetID(t.ID),
			Type:      string(t.Type),
			URL:       t.URL,
			Title:     t.Title,
			IsCurrent: model.TargetID(t.ID) == current,
		})
	}
	return out, nil
}

// AttachTarget 连接指定目标，target 为空时选择第一个页面
func (m *Manager) AttachTarget(target model.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return fmt.Errorf("already attached to %s", m.target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		cancel()
		return err
	}
	var sel *devtool.Target
	for i := range targets {
		if targets[i].Type != devtool.Page {
			continue
		}
		if target == "" || string(targets[i].ID) == string(target) {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		cancel()
		return ErrNoTarget
	}
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return err
	}
	m.ctx, m.cancel = ctx, cancel
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.target = model.TargetID(sel.ID)
	m.log.Info("已附加目标", "target", sel.ID, "url", sel.URL)
	return nil
}

// Detach 断开连接，等待进行中的事件处理完成
func (m *Manager) Detach() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn, m.client = nil, nil
	m.enabled.Store(false)
	m.mu.Unlock()

	m.wg.Wait()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Enable 在请求阶段启用 Fetch 拦截并开始消费事件
func (m *Manager) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return ErrNotAttached
	}
	if m.enabled.Load() {
		return nil
	}

	patterns := make([]fetch.RequestPattern, 0, len(m.patterns))
	for i := range m.patterns {
		p := m.patterns[i]
		patterns = append(patterns, fetch.RequestPattern{URLPattern: &p, RequestStage: fetch.RequestStageRequest})
	}
	if err := m.client.Fetch.Enable(m.ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return err
	}
	rp, err := m.client.Fetch.RequestPaused(m.ctx)
	if err != nil {
		return err
	}
	m.enabled.Store(true)
	m.wg.Add(1)
	go m.consume(m.ctx, m.client, m.target, rp)
	return nil
}

// Disable 停止拦截
func (m *Manager) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return ErrNotAttached
	}
	m.enabled.Store(false)
	return m.client.Fetch.Disable(m.ctx)
}

// consume 持续接收拦截事件，每个事件一个 goroutine
func (m *Manager) consume(ctx context.Context, client *cdp.Client, target model.TargetID, rp fetch.RequestPausedClient) {
	defer m.wg.Done()
	defer rp.Close()

	m.log.Info("开始消费拦截事件流", "target", string(target))
	for {
		ev, err := rp.Recv()
		if err != nil {
			if ctx.Err() == nil {
				m.log.Err(err, "接收拦截事件失败", "target", string(target))
			}
			m.enabled.Store(false)
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handle(ctx, client, target, ev)
		}()
	}
}

// handle 处理一次拦截事件：交付构建好的响应，或在处理器未交付时按配置放行
func (m *Manager) handle(ctx context.Context, client *cdp.Client, target model.TargetID, ev *fetch.RequestPausedReply) {
	desc := adapter.ToDescriptor(ev)
	resolve := func(resp *traffic.Response) error {
		args, err := adapter.ToFulfillArgs(ev.RequestID, resp)
		if err != nil {
			return err
		}
		fctx, cancel := context.WithTimeout(ctx, fulfillTimeout)
		defer cancel()
		return client.Fetch.FulfillRequest(fctx, args)
	}

	src := handler.Source{Session: m.session, Target: target}
	result := m.dispatcher.Dispatch(ctx, src, desc, resolve)
	if result.Resolved() {
		return
	}
	if !m.continueOnIdle {
		m.log.Warn("事件未交付，保持挂起", "traceId", result.TraceID, "url", desc.URL)
		return
	}
	m.degradeAndContinue(ctx, client, ev, result.TraceID)
}

// degradeAndContinue 统一的降级处理：直接放行请求
func (m *Manager) degradeAndContinue(ctx context.Context, client *cdp.Client, ev *fetch.RequestPausedReply, traceID string) {
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := client.Fetch.ContinueRequest(cctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
		m.log.Err(err, "放行请求失败", "traceId", traceID, "requestID", string(ev.RequestID))
		return
	}
	m.log.Debug("事件未交付，已放行原请求", "traceId", traceID, "url", ev.Request.URL)
}
