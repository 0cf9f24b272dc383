package eventhttp

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"fetchbridge/pkg/status"
	"fetchbridge/pkg/traffic"
)

const (
	defaultContentType = "application/octet-stream"
	jsonContentType    = "application/json"
	textContentType    = "text/plain"

	attachmentName    = "attachment.txt"
	attachmentPayload = "This is a text!"
)

// nullBody 这些状态码的响应体必须为空
func nullBody(code int) bool {
	switch code {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// Response 响应构建器：累积状态码、头部与响应体，终结操作只交付一次。
// 同一事件只应调用一个终结操作，重复调用由 Resolver 以 ErrAlreadyResolved 拒绝。
type Response struct {
	statusCode int
	statusSet  bool
	headers    traffic.Header
	resolver   *Resolver
}

// NewResponse 创建绑定 resolver 的响应构建器
func NewResponse(resolver *Resolver) *Response {
	return &Response{
		headers:  make(traffic.Header),
		resolver: resolver,
	}
}

// Status 记录状态码
func (r *Response) Status(code int) *Response {
	r.statusCode = code
	r.statusSet = true
	return r
}

// StatusCode 当前状态码，未设置时返回 false
func (r *Response) StatusCode() (int, bool) {
	return r.statusCode, r.statusSet
}

// Set 两个字符串参数设置单个头部，单个映射参数整体替换头部
func (r *Response) Set(params ...any) error {
	switch len(params) {
	case 1:
		switch h := params[0].(type) {
		case traffic.Header:
			r.headers = h.Clone()
			if r.headers == nil {
				r.headers = make(traffic.Header)
			}
			return nil
		case map[string]string:
			r.headers = traffic.Header(h).Clone()
			if r.headers == nil {
				r.headers = make(traffic.Header)
			}
			return nil
		}
	case 2:
		k, kok := params[0].(string)
		v, vok := params[1].(string)
		if kok && vok {
			r.headers.Set(k, v)
			return nil
		}
	}
	return &ArgumentShapeError{Args: params}
}

// Get 大小写不敏感地获取已设置的头部
func (r *Response) Get(field string) (string, bool) {
	return r.headers.Get(field)
}

// Headers 返回已设置头部的副本
func (r *Response) Headers() traffic.Header { return r.headers.Clone() }

func (r *Response) bound() bool {
	return r.resolver != nil && r.resolver.fn != nil
}

// Resolved 事件是否已交付
func (r *Response) Resolved() bool { return r.resolver.Resolved() }

func (r *Response) contentType(fallback string) string {
	if ct, ok := r.headers.Get("Content-Type"); ok && ct != "" {
		return ct
	}
	return fallback
}

// Send 按当前 Content-Type 包装响应体后交付，流式响应体原样透传
func (r *Response) Send(body traffic.Body) error {
	if body.Kind == traffic.BodyStream {
		return r.deliver(&traffic.Response{Stream: body.Reader}, r.statusCode, r.headers)
	}
	blob := &traffic.Blob{Type: r.contentType(defaultContentType), Data: body.Bytes()}
	return r.deliver(&traffic.Response{Blob: blob}, r.statusCode, r.headers)
}

// JSON 序列化为 JSON 后交付，仅保留状态码，其它头部不随响应发出
func (r *Response) JSON(v any) error {
	if !r.bound() {
		return ErrNoResolver
	}
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	blob := &traffic.Blob{Type: jsonContentType, Data: data}
	return r.deliver(&traffic.Response{Blob: blob}, r.statusCode, nil)
}

// SendError 以错误状态码发送消息，非字符串消息转为 JSON 文本
func (r *Response) SendError(code int, message any, contentType string) error {
	if !r.bound() {
		return ErrNoResolver
	}
	if code == 0 {
		code = http.StatusInternalServerError
	}

	var text string
	switch m := message.(type) {
	case nil:
	case string:
		text = m
	default:
		data, err := marshalJSON(m)
		if err != nil {
			return err
		}
		text = string(data)
	}

	if contentType == "" {
		contentType = r.contentType(textContentType)
	}
	r.Status(code)
	r.headers.Set("Content-Type", contentType)
	return r.Send(traffic.Text(text))
}

// SendRaw 透传已构造好的原始响应，使用其状态码，忽略累积的状态和头部
func (r *Response) SendRaw(raw *traffic.RawResponse) error {
	if raw.Body != nil {
		defer raw.Body.Close()
	}
	if !r.bound() {
		return ErrNoResolver
	}
	var data []byte
	if raw.Body != nil {
		b, err := io.ReadAll(raw.Body)
		if err != nil {
			return fmt.Errorf("read raw response body: %w", err)
		}
		data = b
	}
	ct, _ := raw.Header.Get("Content-Type")
	return r.deliver(&traffic.Response{Blob: &traffic.Blob{Type: ct, Data: data}}, raw.StatusCode, nil)
}

// End 以空响应体交付
func (r *Response) End() error {
	return r.deliver(&traffic.Response{Blob: &traffic.Blob{Data: []byte{}}}, r.statusCode, nil)
}

// Attachment 以附件形式交付固定的演示内容
// TODO: read the attachment from a file path once file-backed attachments exist.
func (r *Response) Attachment() error {
	headers := traffic.Header{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", attachmentName),
		"Content-Type":        defaultContentType,
	}
	blob := &traffic.Blob{Type: defaultContentType, Data: []byte(attachmentPayload)}
	return r.deliver(&traffic.Response{Blob: blob}, http.StatusOK, headers)
}

// Write 尚未实现，直接失败而不是静默忽略
func (r *Response) Write(stream io.Reader) error {
	return &UnsupportedMemberError{Name: "write", Kind: KindMethod}
}

// deliver 物化响应并通过 resolver 交付
func (r *Response) deliver(resp *traffic.Response, code int, headers traffic.Header) error {
	if !r.bound() {
		return ErrNoResolver
	}
	if code == 0 {
		code = http.StatusOK
	}
	resp.StatusCode, resp.StatusText = status.Lookup(code)
	if len(headers) > 0 {
		resp.Header = headers.Clone()
	}
	if nullBody(resp.StatusCode) {
		resp.Blob, resp.Stream = nil, nil
	}
	return r.resolver.Resolve(resp)
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Member 探测成员是否受支持
func (r *Response) Member(name string) error {
	return unsupported(responseUnsupported).lookup(name)
}

func (r *Response) Append(field, value string) error { return r.Member("append") }

func (r *Response) Redirect(code int, location string) error { return r.Member("redirect") }

func (r *Response) Location(path string) error { return r.Member("location") }

func (r *Response) Links(links map[string]string) error { return r.Member("links") }

func (r *Response) JSONP(v any) error { return r.Member("jsonp") }

func (r *Response) Render(view string, locals map[string]any) error { return r.Member("render") }

func (r *Response) SendFile(path string) error { return r.Member("sendFile") }

func (r *Response) App() (any, error) { return nil, r.Member("app") }

func (r *Response) HeadersSent() (bool, error) { return false, r.Member("headersSent") }

func (r *Response) Locals() (map[string]any, error) { return nil, r.Member("locals") }
