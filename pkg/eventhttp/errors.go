package eventhttp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResolver 终结操作时未绑定 resolver
	ErrNoResolver = errors.New("event resolver is not defined")
	// ErrAlreadyResolved 同一事件被第二次 resolve
	ErrAlreadyResolved = errors.New("event already resolved")
)

// MemberKind 不支持成员的类别
type MemberKind string

const (
	KindMethod   MemberKind = "Method"
	KindProperty MemberKind = "Property"
)

// UnsupportedMemberError 访问不支持的属性/方法
type UnsupportedMemberError struct {
	Name string
	Kind MemberKind
}

func (e *UnsupportedMemberError) Error() string {
	return fmt.Sprintf("%s %s is not supported", e.Kind, e.Name)
}

// ArgumentShapeError Set 参数个数或类型不合法
type ArgumentShapeError struct {
	Args []any
}

func (e *ArgumentShapeError) Error() string {
	return fmt.Sprintf("set accepts a header map or two strings, got %d argument(s)", len(e.Args))
}

// ForwardError 转发请求时网络调用失败
type ForwardError struct {
	URL string
	Err error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward %s: %v", e.URL, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// IsUnsupported 判断是否为不支持成员错误
func IsUnsupported(err error) bool {
	var u *UnsupportedMemberError
	return errors.As(err, &u)
}
