package eventhttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchbridge/pkg/traffic"
)

func newTestRequest(t *testing.T, desc traffic.Descriptor, opts ...Option) *Request {
	t.Helper()
	req, err := NewRequest(desc, opts...)
	require.NoError(t, err)
	return req
}

func TestNewRequestURLParts(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{
		Method: "POST",
		URL:    "https://api.example.com/v1/items?a=1&b=x+y&a=2",
	})

	assert.Equal(t, "POST", req.Method())
	assert.Equal(t, "https://api.example.com/v1/items?a=1&b=x+y&a=2", req.OriginalURL())
	assert.Equal(t, "/v1/items", req.Path())
	assert.Equal(t, "api.example.com", req.Hostname())
	assert.Equal(t, "https", req.Protocol())
	assert.True(t, req.Secure())
	assert.Equal(t, map[string]string{"a": "2", "b": "x y"}, req.Query())
	assert.Empty(t, req.Params())
}

func TestNewRequestQueryLastValueWins(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{
		Method: "GET",
		URL:    "https://example.com/search?q=first&tag%5B%5D=a&q=caf%C3%A9&empty=",
	})
	assert.Equal(t, map[string]string{"q": "café", "tag[]": "a", "empty": ""}, req.Query())
}

func TestNewRequestWithoutQuery(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{Method: "GET", URL: "http://localhost:8080/"})

	assert.False(t, req.Secure())
	assert.NotNil(t, req.Query())
	assert.Empty(t, req.Query())
}

func TestNewRequestInvalidURL(t *testing.T) {
	_, err := NewRequest(traffic.Descriptor{Method: "GET", URL: "http://[::1"})
	require.Error(t, err)
}

func TestRequestHeaders(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{
		Method: "GET",
		URL:    "https://example.com/",
		Headers: []traffic.HeaderEntry{
			{Name: "x-content-length", Value: "42"},
			{Name: "Accept", Value: "text/html"},
			{Name: "X-Trace", Value: "abc"},
		},
	})

	want := traffic.Header{"Content-Length": "42", "Accept": "text/html", "X-Trace": "abc"}
	if diff := cmp.Diff(want, req.Headers()); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"accept", "ACCEPT", "AcCePt", "Accept"} {
		v, ok := req.Get(name)
		assert.True(t, ok, name)
		assert.Equal(t, "text/html", v, name)
	}
	v, ok := req.Get("content-length")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = req.Get("x-content-length")
	assert.False(t, ok)
	_, ok = req.Get("missing")
	assert.False(t, ok)
}

func TestRequestFormBody(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{
		Method: "POST",
		URL:    "https://example.com/form",
		Body: traffic.Form(
			traffic.FormField{Name: "a", Value: "1"},
			traffic.FormField{Name: "tags[]", Value: "x"},
			traffic.FormField{Name: "a", Value: "2"},
			traffic.FormField{Name: "tags[]", Value: "y"},
		),
	})

	body := req.Body()
	require.True(t, body.IsMapping())

	a, ok := body.Field("a")
	require.True(t, ok)
	assert.Equal(t, "2", a.String())
	assert.False(t, a.Multi)

	tags, ok := body.Field("tags[]")
	require.True(t, ok)
	assert.True(t, tags.Multi)
	assert.Equal(t, []string{"x", "y"}, tags.Values)
}

func TestRequestBodyShapes(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		req := newTestRequest(t, traffic.Descriptor{Method: "GET", URL: "https://example.com/"})
		assert.True(t, req.Body().IsMapping())
		assert.Empty(t, req.Body().Fields())
	})

	t.Run("raw", func(t *testing.T) {
		req := newTestRequest(t, traffic.Descriptor{
			Method: "POST",
			URL:    "https://example.com/",
			Body:   traffic.Text(`{"k":"v"}`),
		})
		assert.False(t, req.Body().IsMapping())
		assert.Equal(t, traffic.BodyText, req.Body().Raw().Kind)
		assert.Equal(t, `{"k":"v"}`, req.Body().Raw().Text)
	})
}

func TestRequestUnsupportedMembers(t *testing.T) {
	req := newTestRequest(t, traffic.Descriptor{Method: "GET", URL: "https://example.com/"})

	for _, name := range UnsupportedRequestMembers() {
		err := req.Member(name)
		var u *UnsupportedMemberError
		require.ErrorAs(t, err, &u, name)
		assert.Equal(t, name, u.Name)
	}
	assert.NoError(t, req.Member("get"))

	calls := map[string]func() error{
		"accepts":          func() error { _, err := req.Accepts("json"); return err },
		"acceptsCharsets":  func() error { _, err := req.AcceptsCharsets("utf-8"); return err },
		"acceptsEncodings": func() error { _, err := req.AcceptsEncodings("gzip"); return err },
		"acceptsLanguages": func() error { _, err := req.AcceptsLanguages("en"); return err },
		"param":            func() error { _, err := req.Param("id"); return err },
		"is":               func() error { _, err := req.Is("json"); return err },
		"range":            func() error { _, err := req.Range(10); return err },
		"app":              func() error { _, err := req.App(); return err },
		"fresh":            func() error { _, err := req.Fresh(); return err },
		"ip":               func() error { _, err := req.IP(); return err },
		"ips":              func() error { _, err := req.IPs(); return err },
		"signedCookies":    func() error { _, err := req.SignedCookies(); return err },
		"stale":            func() error { _, err := req.Stale(); return err },
		"subdomains":       func() error { _, err := req.Subdomains(); return err },
		"xhr":              func() error { _, err := req.XHR(); return err },
	}
	for name, call := range calls {
		err := call()
		var u *UnsupportedMemberError
		require.ErrorAs(t, err, &u, name)
		assert.Equal(t, name, u.Name)
	}
}

func TestForward(t *testing.T) {
	t.Run("passes raw response to SendRaw", func(t *testing.T) {
		var seen traffic.Descriptor
		fetcher := FetcherFunc(func(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error) {
			seen = desc
			return &traffic.RawResponse{
				StatusCode: 201,
				Header:     traffic.Header{"content-type": "text/plain"},
				Body:       io.NopCloser(strings.NewReader("created")),
			}, nil
		})
		req := newTestRequest(t, traffic.Descriptor{Method: "PUT", URL: "https://example.com/x"}, WithFetcher(fetcher))

		var got *traffic.Response
		res := NewResponse(NewResolver(func(r *traffic.Response) error { got = r; return nil }))
		res.Status(500).Set("X-Ignored", "1")

		require.NoError(t, req.Forward(context.Background(), res))
		assert.Equal(t, "PUT", seen.Method)
		require.NotNil(t, got)
		assert.Equal(t, 201, got.StatusCode)
		assert.Equal(t, "Created", got.StatusText)
		assert.Nil(t, got.Header)
		assert.Equal(t, "created", string(got.Blob.Data))
		assert.Equal(t, "text/plain", got.Blob.Type)
	})

	t.Run("network failure is propagated", func(t *testing.T) {
		cause := errors.New("connection refused")
		fetcher := FetcherFunc(func(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error) {
			return nil, cause
		})
		req := newTestRequest(t, traffic.Descriptor{Method: "GET", URL: "https://example.com/"}, WithFetcher(fetcher))

		resolver := NewResolver(func(r *traffic.Response) error { return nil })
		err := req.Forward(context.Background(), NewResponse(resolver))

		var fe *ForwardError
		require.ErrorAs(t, err, &fe)
		assert.ErrorIs(t, err, cause)
		assert.False(t, resolver.Resolved())
	})
}

func TestForwardWithoutResolver(t *testing.T) {
	var calls int
	fetcher := FetcherFunc(func(ctx context.Context, desc traffic.Descriptor) (*traffic.RawResponse, error) {
		calls++
		return &traffic.RawResponse{StatusCode: 200}, nil
	})
	req := newTestRequest(t, traffic.Descriptor{Method: "GET", URL: "https://example.com/"}, WithFetcher(fetcher))

	assert.ErrorIs(t, req.Forward(context.Background(), NewResponse(nil)), ErrNoResolver)
	assert.ErrorIs(t, req.Forward(context.Background(), NewResponse(NewResolver(nil))), ErrNoResolver)
	assert.Zero(t, calls)
}

func TestForwardHTTPFetcherBodies(t *testing.T) {
	multipartBody := strings.Join([]string{
		"--XYZ",
		`Content-Disposition: form-data; name="a"`,
		"",
		"hello",
		"--XYZ",
		`Content-Disposition: form-data; name="tags[]"`,
		"",
		"go",
		"--XYZ--",
		"",
	}, "\r\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form == nil {
			_ = r.ParseForm()
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, r.FormValue("a")+"|"+strings.Join(r.Form["tags[]"], ","))
	}))
	t.Cleanup(srv.Close)

	cases := []struct {
		name string
		desc traffic.Descriptor
		want string
	}{
		{
			name: "multipart body is sent verbatim",
			desc: traffic.Descriptor{
				Method:  "POST",
				URL:     srv.URL + "/upload",
				Headers: []traffic.HeaderEntry{{Name: "Content-Type", Value: "multipart/form-data; boundary=XYZ"}},
				Body:    traffic.Form(traffic.FormField{Name: "a", Value: "hello"}, traffic.FormField{Name: "tags[]", Value: "go"}),
				Raw:     []byte(multipartBody),
			},
			want: "hello|go",
		},
		{
			name: "urlencoded form without raw bytes",
			desc: traffic.Descriptor{
				Method:  "POST",
				URL:     srv.URL + "/form",
				Headers: []traffic.HeaderEntry{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
				Body:    traffic.Form(traffic.FormField{Name: "a", Value: "x y"}, traffic.FormField{Name: "tags[]", Value: "1"}, traffic.FormField{Name: "tags[]", Value: "2"}),
			},
			want: "x y|1,2",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := newTestRequest(t, tc.desc, WithFetcher(&HTTPFetcher{Client: srv.Client()}))

			var got *traffic.Response
			res := NewResponse(NewResolver(func(r *traffic.Response) error { got = r; return nil }))
			require.NoError(t, req.Forward(context.Background(), res))
			require.NotNil(t, got)
			assert.Equal(t, http.StatusOK, got.StatusCode)
			assert.Equal(t, tc.want, string(got.Blob.Data))
		})
	}
}
