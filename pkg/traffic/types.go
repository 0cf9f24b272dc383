package traffic

import (
	"io"
	"net/url"
	"strings"
)

// Header 头部集合，名称按原样保存
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感），每次调用都遍历全部名称
func (h Header) Get(key string) (string, bool) {
	for name, v := range h {
		if strings.EqualFold(name, key) {
			return v, true
		}
	}
	return "", false
}

// Set 按原样设置 Header
func (h Header) Set(key, value string) {
	h[key] = value
}

// Clone 复制 Header
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// HeaderEntry 有序的头部条目
type HeaderEntry struct {
	Name  string
	Value string
}

// BodyKind 请求/响应体的类型标签
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBytes
	BodyText
	BodyForm
	BodyStream
)

func (k BodyKind) String() string {
	switch k {
	case BodyBytes:
		return "bytes"
	case BodyText:
		return "text"
	case BodyForm:
		return "form"
	case BodyStream:
		return "stream"
	default:
		return "none"
	}
}

// FormField 表单字段
type FormField struct {
	Name  string
	Value string
}

// Body 带标签的消息体
type Body struct {
	Kind   BodyKind
	Data   []byte
	Text   string
	Fields []FormField
	Reader io.Reader
}

// Bytes 二进制消息体
func Bytes(b []byte) Body { return Body{Kind: BodyBytes, Data: b} }

// Text 文本消息体
func Text(s string) Body { return Body{Kind: BodyText, Text: s} }

// Form 表单消息体，保留字段顺序
func Form(fields ...FormField) Body { return Body{Kind: BodyForm, Fields: fields} }

// Stream 流式消息体，原样透传
func Stream(r io.Reader) Body { return Body{Kind: BodyStream, Reader: r} }

// Bytes 把非流式消息体转换为字节
func (b Body) Bytes() []byte {
	switch b.Kind {
	case BodyBytes:
		return b.Data
	case BodyText:
		return []byte(b.Text)
	case BodyForm:
		var sb strings.Builder
		for i, f := range b.Fields {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(f.Name))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(f.Value))
		}
		return []byte(sb.String())
	default:
		return nil
	}
}

// Descriptor 宿主交付的请求描述
type Descriptor struct {
	ID      string
	Method  string
	URL     string
	Headers []HeaderEntry
	Body    Body
	Raw     []byte // 原始请求体，转发时原样发出
}

// Payload 转发时使用的请求体字节，优先使用原始请求体
func (d Descriptor) Payload() []byte {
	if d.Raw != nil {
		return d.Raw
	}
	return d.Body.Bytes()
}

// RawResponse 网络层返回的原始响应
type RawResponse struct {
	StatusCode int
	Header     Header
	Body       io.ReadCloser
}

// Blob 带类型的二进制内容
type Blob struct {
	Type string
	Data []byte
}

// Response 物化后的响应
type Response struct {
	StatusCode int
	StatusText string
	Header     Header    // 为空时不附带
	Blob       *Blob     // 与 Stream 都为空表示无响应体
	Stream     io.Reader // 透传的流式响应体
}

// HasBody 是否携带响应体
func (r *Response) HasBody() bool {
	return r.Blob != nil || r.Stream != nil
}

// ReadBody 读取完整响应体
func (r *Response) ReadBody() ([]byte, error) {
	switch {
	case r.Blob != nil:
		return r.Blob.Data, nil
	case r.Stream != nil:
		return io.ReadAll(r.Stream)
	default:
		return nil, nil
	}
}
