package eventhttp

import "context"

// Handler 处理一次拦截事件。通过 res 的终结操作交付响应；
// 返回错误或不调用终结操作都会让事件保持未交付。
type Handler interface {
	ServeEvent(ctx context.Context, req *Request, res *Response) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, req *Request, res *Response) error

func (f HandlerFunc) ServeEvent(ctx context.Context, req *Request, res *Response) error {
	return f(ctx, req, res)
}

// ForwardHandler 把所有请求转发到网络
var ForwardHandler Handler = HandlerFunc(func(ctx context.Context, req *Request, res *Response) error {
	return req.Forward(ctx, res)
})
