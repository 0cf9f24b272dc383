package eventhttp

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"fetchbridge/pkg/traffic"
)

// Fetcher 重新发出请求的网络栈
type Fetcher interface {
	Fetch(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error)

func (f FetcherFunc) Fetch(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error) {
	return f(ctx, desc)
}

// DefaultFetcher 基于 http.DefaultClient 的默认网络栈
var DefaultFetcher Fetcher = &HTTPFetcher{}

// HTTPFetcher 使用 net/http 转发请求
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error) {
	var body io.Reader
	switch desc.Body.Kind {
	case traffic.BodyNone:
	case traffic.BodyStream:
		body = desc.Body.Reader
	default:
		body = bytes.NewReader(desc.Payload())
	}
	req, err := http.NewRequestWithContext(ctx, desc.Method, desc.URL, body)
	if err != nil {
		return nil, err
	}
	for _, h := range desc.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	header := make(traffic.Header, len(resp.Header))
	for k := range resp.Header {
		header[k] = resp.Header.Get(k)
	}
	return &traffic.RawResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       resp.Body,
	}, nil
}
