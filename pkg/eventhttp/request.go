package eventhttp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"fetchbridge/pkg/traffic"
)

// 拦截层用来携带 Content-Length 的请求头
const interceptedContentLength = "X-Content-Length"

// FormValue 解析后的表单字段
type FormValue struct {
	Values []string
	Multi  bool // 名称以 [] 结尾的字段
}

// String 返回单值字段的值，数组字段返回最后一个值
func (v FormValue) String() string {
	if len(v.Values) == 0 {
		return ""
	}
	return v.Values[len(v.Values)-1]
}

// RequestBody 请求体：原始内容或表单字段映射
type RequestBody struct {
	raw    traffic.Body
	fields map[string]FormValue
}

// IsMapping 请求体是否为字段映射（表单或空）
func (b RequestBody) IsMapping() bool { return b.fields != nil }

// Raw 非表单请求体的原始内容
func (b RequestBody) Raw() traffic.Body { return b.raw }

// Field 获取表单字段
func (b RequestBody) Field(name string) (FormValue, bool) {
	v, ok := b.fields[name]
	return v, ok
}

// Fields 返回表单字段映射的副本
func (b RequestBody) Fields() map[string]FormValue {
	if b.fields == nil {
		return nil
	}
	out := make(map[string]FormValue, len(b.fields))
	for k, v := range b.fields {
		out[k] = v
	}
	return out
}

// parseBody 表单逐字段展开，其余按原样保留
func parseBody(body traffic.Body) RequestBody {
	switch body.Kind {
	case traffic.BodyNone:
		return RequestBody{fields: map[string]FormValue{}}
	case traffic.BodyForm:
		fields := make(map[string]FormValue, len(body.Fields))
		for _, f := range body.Fields {
			if strings.HasSuffix(f.Name, "[]") {
				cur, ok := fields[f.Name]
				if !ok {
					cur = FormValue{Values: []string{}, Multi: true}
				}
				cur.Values = append(cur.Values, f.Value)
				fields[f.Name] = cur
				continue
			}
			fields[f.Name] = FormValue{Values: []string{f.Value}}
		}
		return RequestBody{fields: fields}
	default:
		return RequestBody{raw: body}
	}
}

// Option Request 构造选项
type Option func(*Request)

// WithFetcher 指定 Forward 使用的网络栈
func WithFetcher(f Fetcher) Option {
	return func(r *Request) { r.fetcher = f }
}

// Request 拦截请求的只读视图
type Request struct {
	desc        traffic.Descriptor
	method      string
	originalURL string
	path        string
	hostname    string
	protocol    string
	secure      bool
	headers     traffic.Header
	query       map[string]string
	body        RequestBody
	fetcher     Fetcher
}

// NewRequest 从请求描述构建视图
func NewRequest(desc traffic.Descriptor, opts ...Option) (*Request, error) {
	u, err := url.Parse(desc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}

	headers := make(traffic.Header, len(desc.Headers))
	for _, h := range desc.Headers {
		name := h.Name
		if strings.EqualFold(name, interceptedContentLength) {
			name = "Content-Length"
		}
		headers[name] = h.Value
	}

	values := u.Query()
	query := make(map[string]string, len(values))
	for k, vs := range values {
		query[k] = vs[len(vs)-1]
	}

	r := &Request{
		desc:        desc,
		method:      desc.Method,
		originalURL: desc.URL,
		path:        u.Path,
		hostname:    u.Hostname(),
		protocol:    u.Scheme,
		secure:      u.Scheme == "https",
		headers:     headers,
		query:       query,
		body:        parseBody(desc.Body),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = DefaultFetcher
	}
	return r, nil
}

func (r *Request) Method() string      { return r.method }
func (r *Request) OriginalURL() string { return r.originalURL }
func (r *Request) Path() string        { return r.path }
func (r *Request) Hostname() string    { return r.hostname }
func (r *Request) Protocol() string    { return r.protocol }
func (r *Request) Secure() bool        { return r.secure }
func (r *Request) Body() RequestBody   { return r.body }

// Headers 返回请求头副本
func (r *Request) Headers() traffic.Header { return r.headers.Clone() }

// Query 返回查询参数副本
func (r *Request) Query() map[string]string {
	out := make(map[string]string, len(r.query))
	for k, v := range r.query {
		out[k] = v
	}
	return out
}

// Params 路径参数，没有路由时始终为空
func (r *Request) Params() map[string]string { return map[string]string{} }

// Get 大小写不敏感地获取请求头
func (r *Request) Get(field string) (string, bool) {
	return r.headers.Get(field)
}

// Forward 通过网络栈重新发出原始请求，并把结果交给 res.SendRaw
func (r *Request) Forward(ctx context.Context, res *Response) error {
	if !res.bound() {
		return ErrNoResolver
	}
	raw, err := r.fetcher.Fetch(ctx, r.desc)
	if err != nil {
		return &ForwardError{URL: r.originalURL, Err: err}
	}
	return res.SendRaw(raw)
}

// Member 探测成员是否受支持
func (r *Request) Member(name string) error {
	return unsupported(requestUnsupported).lookup(name)
}

func (r *Request) Accepts(types ...string) (string, error) {
	return "", r.Member("accepts")
}

func (r *Request) AcceptsCharsets(charsets ...string) (string, error) {
	return "", r.Member("acceptsCharsets")
}

func (r *Request) AcceptsEncodings(encodings ...string) (string, error) {
	return "", r.Member("acceptsEncodings")
}

func (r *Request) AcceptsLanguages(langs ...string) (string, error) {
	return "", r.Member("acceptsLanguages")
}

func (r *Request) Param(name string) (string, error) { return "", r.Member("param") }

func (r *Request) Is(types ...string) (string, error) { return "", r.Member("is") }

func (r *Request) Range(size int64) ([][2]int64, error) { return nil, r.Member("range") }

func (r *Request) App() (any, error) { return nil, r.Member("app") }

func (r *Request) Fresh() (bool, error) { return false, r.Member("fresh") }

func (r *Request) IP() (string, error) { return "", r.Member("ip") }

func (r *Request) IPs() ([]string, error) { return nil, r.Member("ips") }

func (r *Request) SignedCookies() (map[string]string, error) {
	return nil, r.Member("signedCookies")
}

func (r *Request) Stale() (bool, error) { return false, r.Member("stale") }

func (r *Request) Subdomains() ([]string, error) { return nil, r.Member("subdomains") }

func (r *Request) XHR() (bool, error) { return false, r.Member("xhr") }
