package eventhttp

// member 一个不支持的成员
type member struct {
	name string
	kind MemberKind
}

// 两侧共用的不支持成员表
var (
	requestUnsupported = []member{
		{"accepts", KindMethod},
		{"acceptsCharsets", KindMethod},
		{"acceptsEncodings", KindMethod},
		{"acceptsLanguages", KindMethod},
		{"param", KindMethod},
		{"is", KindMethod},
		{"range", KindMethod},
		{"app", KindProperty},
		{"fresh", KindProperty},
		{"ip", KindProperty},
		{"ips", KindProperty},
		{"signedCookies", KindProperty},
		{"stale", KindProperty},
		{"subdomains", KindProperty},
		{"xhr", KindProperty},
	}
	responseUnsupported = []member{
		{"append", KindMethod},
		{"redirect", KindMethod},
		{"location", KindMethod},
		{"links", KindMethod},
		{"jsonp", KindMethod},
		{"render", KindMethod},
		{"sendFile", KindMethod},
		{"app", KindProperty},
		{"headersSent", KindProperty},
		{"locals", KindProperty},
	}
)

// unsupported 不支持成员的统一入口
type unsupported []member

func (u unsupported) lookup(name string) error {
	for _, m := range u {
		if m.name == name {
			return &UnsupportedMemberError{Name: m.name, Kind: m.kind}
		}
	}
	return nil
}

func (u unsupported) names() []string {
	out := make([]string, len(u))
	for i, m := range u {
		out[i] = m.name
	}
	return out
}

// UnsupportedRequestMembers 返回 Request 不支持的成员名
func UnsupportedRequestMembers() []string { return unsupported(requestUnsupported).names() }

// UnsupportedResponseMembers 返回 Response 不支持的成员名
func UnsupportedResponseMembers() []string { return unsupported(responseUnsupported).names() }
