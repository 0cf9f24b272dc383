package eventhttp

import (
	"sync"

	"fetchbridge/pkg/traffic"
)

// ResolveFunc 把物化后的响应交回宿主
type ResolveFunc func(*traffic.Response) error

// Resolver 一次性的完成句柄
type Resolver struct {
	mu       sync.Mutex
	fn       ResolveFunc
	resolved bool
	resp     *traffic.Response
}

// NewResolver 创建 resolver
func NewResolver(fn ResolveFunc) *Resolver {
	return &Resolver{fn: fn}
}

// Resolve 交付响应，第二次调用返回 ErrAlreadyResolved
func (r *Resolver) Resolve(resp *traffic.Response) error {
	if r == nil || r.fn == nil {
		return ErrNoResolver
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return ErrAlreadyResolved
	}
	r.resolved = true
	r.resp = resp
	return r.fn(resp)
}

// Resolved 是否已经交付
func (r *Resolver) Resolved() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Response 返回已交付的响应
func (r *Resolver) Response() *traffic.Response {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resp
}
