package cdp

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"fetchbridge/pkg/traffic"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/tidwall/gjson"
)

// ToDescriptor 将 CDP 拦截事件转换为请求描述
func ToDescriptor(ev *fetch.RequestPausedReply) traffic.Descriptor {
	desc := traffic.Descriptor{
		ID:     string(ev.RequestID),
		URL:    ev.Request.URL,
		Method: ev.Request.Method,
	}

	// 按原始顺序读取 Header
	var contentType string
	if len(ev.Request.Headers) > 0 {
		gjson.ParseBytes(ev.Request.Headers).ForEach(func(k, v gjson.Result) bool {
			desc.Headers = append(desc.Headers, traffic.HeaderEntry{Name: k.String(), Value: v.String()})
			if strings.EqualFold(k.String(), "content-type") {
				contentType = v.String()
			}
			return true
		})
	}

	if ev.Request.PostData != nil {
		desc.Body = ParseBody(contentType, *ev.Request.PostData)
		desc.Raw = []byte(*ev.Request.PostData)
	}
	return desc
}

// ParseBody 表单类型解析为有序字段，其余保留为文本
func ParseBody(contentType, data string) traffic.Body {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return traffic.Text(data)
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		return traffic.Form(parseURLEncoded(data)...)
	case "multipart/form-data":
		fields, err := parseMultipart(data, params["boundary"])
		if err != nil {
			return traffic.Text(data)
		}
		return traffic.Form(fields...)
	default:
		return traffic.Text(data)
	}
}

func parseURLEncoded(data string) []traffic.FormField {
	var fields []traffic.FormField
	for _, pair := range strings.Split(data, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(k)
		if err != nil {
			name = k
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			value = v
		}
		fields = append(fields, traffic.FormField{Name: name, Value: value})
	}
	return fields
}

func parseMultipart(data, boundary string) ([]traffic.FormField, error) {
	if boundary == "" {
		return nil, errors.New("multipart boundary missing")
	}
	r := multipart.NewReader(strings.NewReader(data), boundary)
	var fields []traffic.FormField
	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		value, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		fields = append(fields, traffic.FormField{Name: part.FormName(), Value: string(value)})
	}
}

// ToFulfillArgs 将物化响应转换为 FulfillRequest 参数
func ToFulfillArgs(id fetch.RequestID, resp *traffic.Response) (*fetch.FulfillRequestArgs, error) {
	args := &fetch.FulfillRequestArgs{RequestID: id, ResponseCode: resp.StatusCode}

	h := resp.Header.Clone()
	if h == nil {
		h = traffic.Header{}
	}
	if resp.Blob != nil && resp.Blob.Type != "" {
		if _, ok := h.Get("Content-Type"); !ok {
			h.Set("Content-Type", resp.Blob.Type)
		}
	}
	if len(h) > 0 {
		args.ResponseHeaders = ToHeaderEntries(h)
	}

	body, err := resp.ReadBody()
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		args.Body = bytes.Clone(body)
	}
	return args, nil
}

// ToHeaderEntries 将 Header 转换为 CDP Header 条目，按名称排序
func ToHeaderEntries(h traffic.Header) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(h))
	for k, v := range h {
		entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
