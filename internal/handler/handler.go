package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fetchbridge/internal/ctxkeys"
	"fetchbridge/internal/logger"
	"fetchbridge/internal/rules"
	"fetchbridge/internal/storage"
	"fetchbridge/pkg/eventhttp"
	"fetchbridge/pkg/model"
	"fetchbridge/pkg/traffic"
)

// Recorder 拦截记录落盘
type Recorder interface {
	Record(ctx context.Context, ex *storage.Exchange) error
}

// Dispatcher 事件分发器：为每个拦截事件构建请求/响应对，协调规则匹配、处理器执行与事件通知
type Dispatcher struct {
	engine           *rules.Engine
	handler          eventhttp.Handler
	fetcher          eventhttp.Fetcher
	recorder         Recorder
	events           chan model.Event
	processTimeoutMS int
	forwardTimeoutMS int
	log              logger.Logger
}

// Config 配置选项
type Config struct {
	Engine           *rules.Engine
	Handler          eventhttp.Handler // 无规则命中时使用
	Fetcher          eventhttp.Fetcher
	Recorder         Recorder
	Events           chan model.Event
	ProcessTimeoutMS int
	ForwardTimeoutMS int
	Logger           logger.Logger
}

// Source 事件来源
type Source struct {
	Session model.SessionID
	Target  model.TargetID
}

// Result 单次分发结果
type Result struct {
	TraceID  string
	Outcome  storage.Outcome
	Rule     *model.RuleID
	Response *traffic.Response
	Err      error
}

// Resolved 事件是否已交付
func (r Result) Resolved() bool { return r.Response != nil }

// New 创建分发器
func New(cfg Config) *Dispatcher {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Dispatcher{
		engine:           cfg.Engine,
		handler:          cfg.Handler,
		fetcher:          cfg.Fetcher,
		recorder:         cfg.Recorder,
		events:           cfg.Events,
		processTimeoutMS: cfg.ProcessTimeoutMS,
		forwardTimeoutMS: cfg.ForwardTimeoutMS,
		log:              l,
	}
}

// SetEngine 设置规则引擎
func (d *Dispatcher) SetEngine(engine *rules.Engine) {
	d.engine = engine
}

// Dispatch 处理一次拦截事件，resolve 最多被调用一次
func (d *Dispatcher) Dispatch(ctx context.Context, src Source, desc traffic.Descriptor, resolve eventhttp.ResolveFunc) Result {
	start := time.Now()
	traceID := uuid.NewString()
	ctx = ctxkeys.WithTraceID(ctx, traceID)
	if d.processTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(d.processTimeoutMS)*time.Millisecond)
		defer cancel()
	}
	l := d.log.With("traceId", traceID, "method", desc.Method, "url", desc.URL)
	l.Debug("开始处理拦截事件")

	d.sendEvent(model.Event{
		Type:    "intercepted",
		Session: src.Session,
		Target:  src.Target,
		TraceID: traceID,
		URL:     desc.URL,
		Method:  desc.Method,
	})

	res := Result{TraceID: traceID}
	req, err := eventhttp.NewRequest(desc, eventhttp.WithFetcher(d.fetcher))
	if err != nil {
		res.Outcome, res.Err = storage.OutcomeFailed, err
		d.finish(ctx, src, desc, res, nil, start, l)
		return res
	}

	resolver := eventhttp.NewResolver(resolve)
	resp := eventhttp.NewResponse(resolver)

	var forwarded bool
	if matched := d.match(req); matched != nil {
		id := matched.Rule.ID
		res.Rule = &id
		forwarded = matched.Rule.Action.Type == model.ActionForward
		err = d.run(func() error { return d.applyAction(ctx, matched.Rule.Action, req, resp) })
	} else if d.handler != nil {
		err = d.run(func() error { return d.handler.ServeEvent(ctx, req, resp) })
	}

	res.Response = resolver.Response()
	switch {
	case err != nil:
		res.Outcome, res.Err = storage.OutcomeFailed, err
	case !resolver.Resolved():
		res.Outcome = storage.OutcomeUnresolved
	case forwarded:
		res.Outcome = storage.OutcomeForwarded
	default:
		res.Outcome = storage.OutcomeResolved
	}
	d.finish(ctx, src, desc, res, req, start, l)
	return res
}

func (d *Dispatcher) match(req *eventhttp.Request) *rules.MatchedRule {
	if d.engine == nil {
		return nil
	}
	return d.engine.Eval(rules.NewEvalContext(req))
}

// run 执行处理器，panic 转为错误
func (d *Dispatcher) run(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn()
}

// applyAction 把规则行为作用到响应构建器
func (d *Dispatcher) applyAction(ctx context.Context, a model.Action, req *eventhttp.Request, res *eventhttp.Response) error {
	if a.DelayMS > 0 {
		t := time.NewTimer(time.Duration(a.DelayMS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if a.Status != 0 && a.Type != model.ActionError {
		res.Status(a.Status)
	}

	switch a.Type {
	case model.ActionRespond:
		if len(a.Headers) > 0 {
			if err := res.Set(a.Headers); err != nil {
				return err
			}
		}
		if a.ContentType != "" {
			if err := res.Set("Content-Type", a.ContentType); err != nil {
				return err
			}
		}
		return res.Send(traffic.Text(a.Body))
	case model.ActionJSON:
		return res.JSON(a.JSON)
	case model.ActionError:
		return res.SendError(a.Status, a.Message, a.ContentType)
	case model.ActionEnd:
		return res.End()
	case model.ActionAttachment:
		return res.Attachment()
	case model.ActionForward:
		fctx := ctx
		if d.forwardTimeoutMS > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, time.Duration(d.forwardTimeoutMS)*time.Millisecond)
			defer cancel()
		}
		return req.Forward(fctx, res)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// finish 记录并通知分发结果
func (d *Dispatcher) finish(ctx context.Context, src Source, desc traffic.Descriptor, res Result, req *eventhttp.Request, start time.Time, l logger.Logger) {
	duration := time.Since(start)
	evt := model.Event{
		Type:    string(res.Outcome),
		Session: src.Session,
		Target:  src.Target,
		Rule:    res.Rule,
		TraceID: res.TraceID,
		URL:     desc.URL,
		Method:  desc.Method,
	}

	ex := &storage.Exchange{
		TraceID:    res.TraceID,
		Session:    string(src.Session),
		Target:     string(src.Target),
		Method:     desc.Method,
		URL:        desc.URL,
		Outcome:    res.Outcome,
		DurationMS: float64(duration.Nanoseconds()) / 1e6,
	}
	if req != nil {
		ex.RequestHeaders = storage.HeadersJSON(req.Headers())
	}
	if res.Rule != nil {
		ex.Rule = string(*res.Rule)
	}
	if res.Response != nil {
		evt.StatusCode = res.Response.StatusCode
		ex.StatusCode = res.Response.StatusCode
		ex.StatusText = res.Response.StatusText
		ex.ResponseHeaders = storage.HeadersJSON(res.Response.Header)
		switch {
		case res.Response.Blob != nil:
			ex.BodySize = len(res.Response.Blob.Data)
		case res.Response.Stream != nil:
			ex.BodySize = -1
		}
	}

	if res.Err != nil {
		evt.Error = res.Err.Error()
		ex.Error = res.Err.Error()
		var fe *eventhttp.ForwardError
		switch {
		case errors.As(res.Err, &fe):
			l.Err(res.Err, "转发请求失败", "duration", duration)
		case eventhttp.IsUnsupported(res.Err):
			l.Err(res.Err, "处理器使用了不支持的成员", "duration", duration)
		default:
			l.Err(res.Err, "拦截事件处理失败", "duration", duration)
		}
	} else {
		l.Debug("拦截事件处理完成", "outcome", res.Outcome, "status", ex.StatusCode, "duration", duration)
	}

	if d.recorder != nil {
		// 记录不受处理超时影响
		if err := d.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
			l.Err(err, "写入拦截记录失败")
		}
	}
	d.sendEvent(evt)
}

// sendEvent 安全发送事件到通道，自动添加时间戳
func (d *Dispatcher) sendEvent(evt model.Event) {
	if d.events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case d.events <- evt:
	default:
	}
}
