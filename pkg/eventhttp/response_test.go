package eventhttp

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchbridge/pkg/traffic"
)

// capture 记录 resolver 收到的响应
type capture struct {
	calls int
	resp  *traffic.Response
}

func (c *capture) resolver() *Resolver {
	return NewResolver(func(r *traffic.Response) error {
		c.calls++
		c.resp = r
		return nil
	})
}

func TestSendDefaults(t *testing.T) {
	var c capture
	res := NewResponse(c.resolver())

	require.NoError(t, res.Send(traffic.Text("hello")))
	require.Equal(t, 1, c.calls)
	assert.Equal(t, 200, c.resp.StatusCode)
	assert.Equal(t, "OK", c.resp.StatusText)
	assert.Nil(t, c.resp.Header)
	assert.Equal(t, "application/octet-stream", c.resp.Blob.Type)
	assert.Equal(t, "hello", string(c.resp.Blob.Data))
}

func TestSendUsesAccumulatedState(t *testing.T) {
	var c capture
	res := NewResponse(c.resolver())
	require.NoError(t, res.Set("content-type", "text/html"))
	require.NoError(t, res.Set("X-Id", "7"))

	require.NoError(t, res.Status(201).Send(traffic.Bytes([]byte("<p>"))))
	assert.Equal(t, 201, c.resp.StatusCode)
	assert.Equal(t, "Created", c.resp.StatusText)
	assert.Equal(t, "text/html", c.resp.Blob.Type)
	assert.Equal(t, traffic.Header{"content-type": "text/html", "X-Id": "7"}, c.resp.Header)
}

func TestSendStreamPassesThrough(t *testing.T) {
	var c capture
	res := NewResponse(c.resolver())
	r := strings.NewReader("chunked")

	require.NoError(t, res.Send(traffic.Stream(r)))
	assert.Nil(t, c.resp.Blob)
	require.NotNil(t, c.resp.Stream)
	data, err := io.ReadAll(c.resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "chunked", string(data))
}

func TestNullBodyStatuses(t *testing.T) {
	terminals := map[string]func(*Response) error{
		"send":      func(r *Response) error { return r.Send(traffic.Text("body")) },
		"stream":    func(r *Response) error { return r.Send(traffic.Stream(strings.NewReader("body"))) },
		"json":      func(r *Response) error { return r.JSON(map[string]int{"a": 1}) },
		"end":       func(r *Response) error { return r.End() },
		"sendError": func(r *Response) error { return r.SendError(r.statusCode, "body", "") },
	}
	for _, code := range []int{204, 205, 304} {
		for name, terminal := range terminals {
			var c capture
			res := NewResponse(c.resolver()).Status(code)
			require.NoError(t, terminal(res), name)
			assert.Equal(t, code, c.resp.StatusCode, name)
			assert.False(t, c.resp.HasBody(), "%s %d", name, code)
		}

		var c capture
		raw := &traffic.RawResponse{StatusCode: code, Body: io.NopCloser(strings.NewReader("x"))}
		require.NoError(t, NewResponse(c.resolver()).SendRaw(raw))
		assert.False(t, c.resp.HasBody())
	}
}

func TestStatusRegistryFallback(t *testing.T) {
	var c capture
	require.NoError(t, NewResponse(c.resolver()).Status(404).End())
	assert.Equal(t, 404, c.resp.StatusCode)
	assert.Equal(t, "Not Found", c.resp.StatusText)

	c = capture{}
	require.NoError(t, NewResponse(c.resolver()).Status(799).Send(traffic.Text("x")))
	assert.Equal(t, 200, c.resp.StatusCode)
	assert.Equal(t, "OK", c.resp.StatusText)
}

func TestSetShapes(t *testing.T) {
	res := NewResponse(nil)

	require.NoError(t, res.Set(map[string]string{"A": "1"}))
	require.NoError(t, res.Set(traffic.Header{"B": "2"}))
	assert.Equal(t, traffic.Header{"B": "2"}, res.Headers())

	require.NoError(t, res.Set("C", "3"))
	v, ok := res.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	_, ok = res.Get("a")
	assert.False(t, ok)

	bad := [][]any{
		nil,
		{"only"},
		{"a", 1},
		{1, "b"},
		{"a", "b", "c"},
		{42},
	}
	for _, args := range bad {
		err := res.Set(args...)
		var shape *ArgumentShapeError
		assert.ErrorAs(t, err, &shape, "%v", args)
	}
}

func TestJSONIgnoresCustomHeaders(t *testing.T) {
	var c capture
	res := NewResponse(c.resolver())
	require.NoError(t, res.Set("X-Custom", "1"))

	require.NoError(t, res.Status(202).JSON(map[string]any{"html": "<b>", "n": 1}))
	assert.Equal(t, 202, c.resp.StatusCode)
	assert.Nil(t, c.resp.Header)
	assert.Equal(t, "application/json", c.resp.Blob.Type)
	assert.JSONEq(t, `{"html":"<b>","n":1}`, string(c.resp.Blob.Data))
	assert.Contains(t, string(c.resp.Blob.Data), "<b>")
}

func TestSendError(t *testing.T) {
	t.Run("non-string message", func(t *testing.T) {
		var c capture
		res := NewResponse(c.resolver())

		require.NoError(t, res.SendError(404, map[string]string{"reason": "missing"}, ""))
		assert.Equal(t, 404, c.resp.StatusCode)
		assert.Equal(t, traffic.Header{"Content-Type": "text/plain"}, c.resp.Header)
		assert.Equal(t, `{"reason":"missing"}`, string(c.resp.Blob.Data))
	})

	t.Run("defaults", func(t *testing.T) {
		var c capture
		res := NewResponse(c.resolver())
		require.NoError(t, res.Set("Content-Type", "application/problem+json"))

		require.NoError(t, res.SendError(0, nil, ""))
		assert.Equal(t, 500, c.resp.StatusCode)
		assert.Equal(t, "Internal Server Error", c.resp.StatusText)
		assert.Equal(t, "application/problem+json", c.resp.Blob.Type)
		assert.Empty(t, c.resp.Blob.Data)
	})

	t.Run("explicit content type", func(t *testing.T) {
		var c capture
		res := NewResponse(c.resolver())

		require.NoError(t, res.SendError(400, "bad", "text/csv"))
		assert.Equal(t, "text/csv", c.resp.Blob.Type)
		assert.Equal(t, "bad", string(c.resp.Blob.Data))
	})
}

func TestEndAndAttachment(t *testing.T) {
	var c capture
	require.NoError(t, NewResponse(c.resolver()).Status(418).End())
	assert.Equal(t, 418, c.resp.StatusCode)
	require.NotNil(t, c.resp.Blob)
	assert.Empty(t, c.resp.Blob.Data)

	c = capture{}
	require.NoError(t, NewResponse(c.resolver()).Attachment())
	assert.Equal(t, 200, c.resp.StatusCode)
	assert.Equal(t, `attachment; filename="attachment.txt"`, c.resp.Header["Content-Disposition"])
	assert.Equal(t, "This is a text!", string(c.resp.Blob.Data))
	assert.Equal(t, "application/octet-stream", c.resp.Header["Content-Type"])
	assert.Equal(t, c.resp.Blob.Type, c.resp.Header["Content-Type"])
}

// closeTracker 记录响应体是否被关闭
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestSendRawClosesBody(t *testing.T) {
	t.Run("without resolver", func(t *testing.T) {
		body := &closeTracker{Reader: strings.NewReader("upstream")}
		err := NewResponse(nil).SendRaw(&traffic.RawResponse{StatusCode: 200, Body: body})
		assert.ErrorIs(t, err, ErrNoResolver)
		assert.True(t, body.closed)
	})

	t.Run("with resolver", func(t *testing.T) {
		var c capture
		body := &closeTracker{Reader: strings.NewReader("upstream")}
		require.NoError(t, NewResponse(c.resolver()).SendRaw(&traffic.RawResponse{StatusCode: 200, Body: body}))
		assert.True(t, body.closed)
		assert.Equal(t, "upstream", string(c.resp.Blob.Data))
	})
}

func TestTerminalWithoutResolver(t *testing.T) {
	terminals := map[string]func(*Response) error{
		"send":       func(r *Response) error { return r.Send(traffic.Text("x")) },
		"json":       func(r *Response) error { return r.JSON(1) },
		"sendError":  func(r *Response) error { return r.SendError(404, "x", "") },
		"sendRaw":    func(r *Response) error { return r.SendRaw(&traffic.RawResponse{StatusCode: 200}) },
		"end":        func(r *Response) error { return r.End() },
		"attachment": func(r *Response) error { return r.Attachment() },
	}
	for name, terminal := range terminals {
		res := NewResponse(nil)
		assert.ErrorIs(t, terminal(res), ErrNoResolver, name)
		assert.Empty(t, res.Headers(), name)

		res = NewResponse(NewResolver(nil))
		assert.ErrorIs(t, terminal(res), ErrNoResolver, name)
	}
}

func TestSecondTerminalIsRejected(t *testing.T) {
	var c capture
	res := NewResponse(c.resolver())

	require.NoError(t, res.Send(traffic.Text("first")))
	assert.ErrorIs(t, res.End(), ErrAlreadyResolved)
	assert.ErrorIs(t, res.JSON(1), ErrAlreadyResolved)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, "first", string(c.resp.Blob.Data))
	assert.True(t, res.Resolved())
}

func TestWriteFailsLoudly(t *testing.T) {
	res := NewResponse(nil)
	err := res.Write(strings.NewReader("x"))
	assert.True(t, IsUnsupported(err))
}

func TestResponseUnsupportedMembers(t *testing.T) {
	res := NewResponse(nil)
	for _, name := range UnsupportedResponseMembers() {
		var u *UnsupportedMemberError
		require.ErrorAs(t, res.Member(name), &u, name)
		assert.Equal(t, name, u.Name)
	}

	calls := map[string]error{
		"append":   res.Append("a", "b"),
		"redirect": res.Redirect(302, "/"),
		"location": res.Location("/"),
		"links":    res.Links(nil),
		"jsonp":    res.JSONP(nil),
		"render":   res.Render("index", nil),
		"sendFile": res.SendFile("/tmp/x"),
	}
	_, calls["app"] = res.App()
	_, calls["headersSent"] = res.HeadersSent()
	_, calls["locals"] = res.Locals()
	for name, err := range calls {
		var u *UnsupportedMemberError
		require.ErrorAs(t, err, &u, name)
		assert.Equal(t, name, u.Name)
	}
}

func TestUnsupportedErrorMessage(t *testing.T) {
	err := NewResponse(nil).Member("headersSent")
	assert.EqualError(t, err, "Property headersSent is not supported")
	err = NewResponse(nil).Member("redirect")
	assert.EqualError(t, err, "Method redirect is not supported")
}
