package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"boardpilot/internal/domain"
)

// ClientInfo describes an authenticated API client.
type ClientInfo struct {
	Name string
}

// Authenticator validates gateway tokens.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// TokenEntry pairs one static token with a client name for logging.
type TokenEntry struct {
	Name  string
	Token string
}

// StaticTokenAuth authenticates against a fixed token list from config.
type StaticTokenAuth struct {
	entries []TokenEntry
}

// NewStaticTokenAuth builds an authenticator over the given tokens. Entries
// with an empty token are skipped.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	valid := make([]TokenEntry, 0, len(entries))
	for _, e := range entries {
		if e.Token != "" {
			valid = append(valid, e)
		}
	}
	return &StaticTokenAuth{entries: valid}
}

// Authenticate compares the presented token against every configured entry
// in constant time.
func (a *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuth
	}
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare([]byte(token), []byte(e.Token)) == 1 {
			return &ClientInfo{Name: e.Name}, nil
		}
	}
	return nil, domain.ErrGatewayAuth
}

// AllowAll accepts any connection. For local development only.
type AllowAll struct{}

// Authenticate always succeeds.
func (AllowAll) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

// requestToken extracts the bearer token from a request, preferring the
// Authorization header and falling back to the token query parameter so
// browser websocket clients can authenticate.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return r.URL.Query().Get("token")
}
