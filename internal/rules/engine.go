package rules

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"fetchbridge/pkg/eventhttp"
	"fetchbridge/pkg/model"
	"fetchbridge/pkg/traffic"
)

// Engine 规则引擎：为拦截的请求选择行为
type Engine struct {
	mu      sync.RWMutex
	rs      model.RuleSet
	total   atomic.Int64
	matched atomic.Int64
}

func New(rs model.RuleSet) *Engine { return &Engine{rs: rs} }

func (e *Engine) Update(rs model.RuleSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rs = rs
}

// EvalContext 规则匹配上下文
type EvalContext struct {
	URL     string
	Method  string
	Headers traffic.Header
	Query   map[string]string
	Body    string
}

// NewEvalContext 从请求视图构建匹配上下文
func NewEvalContext(req *eventhttp.Request) *EvalContext {
	ctx := &EvalContext{
		URL:     req.OriginalURL(),
		Method:  req.Method(),
		Headers: req.Headers(),
		Query:   req.Query(),
	}
	body := req.Body()
	if !body.IsMapping() {
		ctx.Body = string(body.Raw().Bytes())
	}
	return ctx
}

// MatchedRule 命中的规则
type MatchedRule struct {
	Rule *model.Rule
}

// Stats 匹配统计
type Stats struct {
	Total   int64
	Matched int64
}

func (e *Engine) Stats() Stats {
	return Stats{Total: e.total.Load(), Matched: e.matched.Load()}
}

// Eval 返回优先级最高的命中规则；short_circuit 规则命中后停止遍历
func (e *Engine) Eval(ctx *EvalContext) *MatchedRule {
	all := e.EvalAll(ctx)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// EvalAll 返回所有命中规则，按优先级降序
func (e *Engine) EvalAll(ctx *EvalContext) []*MatchedRule {
	e.total.Add(1)
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*MatchedRule
	for i := range e.rs.Rules {
		r := &e.rs.Rules[i]
		if !matchRule(ctx, r.Match) {
			continue
		}
		out = append(out, &MatchedRule{Rule: r})
		if r.Mode == "short_circuit" {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rule.Priority > out[j].Rule.Priority
	})
	if len(out) > 0 {
		e.matched.Add(1)
	}
	return out
}

func matchRule(ctx *EvalContext, m model.Match) bool {
	ok := true
	if len(m.AllOf) > 0 {
		ok = ok && allOf(ctx, m.AllOf)
	}
	if len(m.AnyOf) > 0 {
		ok = ok && anyOf(ctx, m.AnyOf)
	}
	if len(m.NoneOf) > 0 {
		ok = ok && noneOf(ctx, m.NoneOf)
	}
	return ok
}

func allOf(ctx *EvalContext, cs []model.Condition) bool {
	for i := range cs {
		if !cond(ctx, cs[i]) {
			return false
		}
	}
	return true
}

func anyOf(ctx *EvalContext, cs []model.Condition) bool {
	for i := range cs {
		if cond(ctx, cs[i]) {
			return true
		}
	}
	return false
}

func noneOf(ctx *EvalContext, cs []model.Condition) bool { return !anyOf(ctx, cs) }

func cond(ctx *EvalContext, c model.Condition) bool {
	switch c.Type {
	case "url":
		switch c.Mode {
		case "prefix":
			return strings.HasPrefix(ctx.URL, c.Pattern)
		case "regex":
			return matchRegex(ctx.URL, c.Pattern)
		case "exact":
			return ctx.URL == c.Pattern
		default:
			return glob(ctx.URL, c.Pattern)
		}
	case "method":
		for _, v := range c.Values {
			if strings.EqualFold(ctx.Method, v) {
				return true
			}
		}
		return false
	case "header":
		v, ok := ctx.Headers.Get(c.Key)
		return ok && compare(v, c)
	case "query":
		v, ok := ctx.Query[c.Key]
		return ok && compare(v, c)
	case "text":
		return ctx.Body != "" && compare(ctx.Body, c)
	case "json":
		if ctx.Body == "" || !gjson.Valid(ctx.Body) {
			return false
		}
		res := gjson.Get(ctx.Body, c.Path)
		return res.Exists() && compare(res.String(), c)
	default:
		return false
	}
}

func compare(v string, c model.Condition) bool {
	switch c.Op {
	case "equals":
		return v == c.Value
	case "contains":
		return strings.Contains(v, c.Value)
	case "regex":
		return matchRegex(v, c.Value)
	default:
		return true
	}
}

var regexCache sync.Map

func matchRegex(s, pattern string) bool {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp).MatchString(s)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	regexCache.Store(pattern, re)
	return re.MatchString(s)
}

func glob(s, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(s, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(s, strings.TrimSuffix(pattern, "*")) {
		return true
	}
	return s == pattern
}
