// Package status holds the code to reason-phrase table used when materializing responses.
package status

import (
	"net/http"
	"sync"
)

var table = sync.OnceValue(func() map[int]string {
	m := make(map[int]string)
	for code := 100; code < 600; code++ {
		if text := http.StatusText(code); text != "" {
			m[code] = text
		}
	}
	return m
})

// Text returns the registered reason phrase for code.
func Text(code int) (string, bool) {
	text, ok := table()[code]
	return text, ok
}

// Lookup resolves code to a (code, reason) pair. Unregistered codes fall back to 200 OK.
func Lookup(code int) (int, string) {
	if text, ok := Text(code); ok {
		return code, text
	}
	return http.StatusOK, "OK"
}

// Len reports how many codes are registered.
func Len() int { return len(table()) }
