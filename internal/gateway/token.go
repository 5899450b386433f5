package gateway

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// TokenName is the shared name of the query parameter, header, and cookie
// through which the access token may be presented.
const TokenName = "access_token"

// LoadAccessToken reads the shared secret from its token file. Only the
// first line counts; surrounding whitespace is stripped. An absent file or
// an empty token is a startup failure.
func LoadAccessToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading api token file: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("api token file %s contains no token", path)
	}
	return token, nil
}

// tokenChannels lists the credential extraction channels in their fixed
// precedence order: query parameter, header, cookie. Each returns the
// candidate value or the empty string when the channel is absent.
var tokenChannels = []func(*http.Request) string{
	func(r *http.Request) string {
		return r.URL.Query().Get(TokenName)
	},
	func(r *http.Request) string {
		return r.Header.Get(TokenName)
	},
	func(r *http.Request) string {
		cookie, err := r.Cookie(TokenName)
		if err != nil {
			return ""
		}
		return cookie.Value
	},
}

// resolveToken reports whether any channel carries the shared secret,
// short-circuiting on the first match. An absent channel is a plain
// mismatch, never an error. Comparison is deliberately a plain equality
// test, matching the existing client contract; the token never being
// empty (enforced at load) keeps absent channels from matching.
func resolveToken(r *http.Request, token string) bool {
	for _, extract := range tokenChannels {
		if extract(r) == token {
			return true
		}
	}
	return false
}
