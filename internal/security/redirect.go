package security

import (
	"net/url"
	"path"
	"strings"
)

const maxDecodePasses = 5

// SafeNext turns an untrusted request target into a site-relative path that
// is safe to redirect to after login. It never returns loginPath itself, so
// the login page cannot send a client back to the login page.
func SafeNext(raw string, loginPath string) string {
	decoded, ok := decodeBounded(raw)
	if !ok {
		return "/"
	}

	p := decoded
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if p == "" || p[0] != '/' {
		return "/"
	}
	if strings.HasPrefix(p, "//") || strings.ContainsRune(p, '\\') || hasControl(p) {
		return "/"
	}
	if isLoginPath(p, loginPath) {
		return "/"
	}
	return p
}

// decodeBounded unescapes raw until it stops changing. Values still changing
// after maxDecodePasses are rejected, so an accepted result contains no '+'
// and no valid escape sequence.
func decodeBounded(raw string) (string, bool) {
	current := raw
	for i := 0; i <= maxDecodePasses; i++ {
		next := unescapeLenient(current)
		if next == current {
			return current, true
		}
		if i == maxDecodePasses {
			break
		}
		current = next
	}
	return "", false
}

// unescapeLenient decodes %XX escapes and '+' like url.QueryUnescape, but
// leaves a '%' that does not start a valid escape in place.
func unescapeLenient(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '+':
			b.WriteByte(' ')
		case s[i] == '%' && i+2 < len(s) && ishex(s[i+1]) && ishex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func ishex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isLoginPath(p string, loginPath string) bool {
	login := strings.ToLower(loginPath)
	return strings.HasPrefix(strings.ToLower(p), login) ||
		strings.HasPrefix(strings.ToLower(path.Clean(p)), login)
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// LoginRedirect is the Location sent to unauthenticated page requests.
func LoginRedirect(loginPath string, next string) string {
	return loginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "+", "%20")
}
