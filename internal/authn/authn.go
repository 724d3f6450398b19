// Package authn is the pluggable authentication decision point spec.md §1
// calls out as deliberately out of scope for its *mechanism* ("password
// hashing, signed cookie tokens") while still specifying where the core
// consults it. No bcrypt/HMAC primitive lives here — only the Gate
// decision grounded on the original implementation's
// security.require_principal.
package authn

import (
	"net/http"

	"github.com/hearthlane/termbroker/internal/brokererr"
	"github.com/hearthlane/termbroker/internal/settings"
)

// Principal identifies the caller of a gated operation.
type Principal struct {
	Username  string
	IsAdmin   bool
	Anonymous bool
}

// Authenticator resolves a Principal from an inbound request's
// credentials (a cookie, a bearer token, whatever the deployment uses).
// It does not verify passwords or sign tokens itself; that mechanism is
// explicitly out of scope and left to the caller's implementation.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, bool)
}

// NoopAuthenticator never resolves a Principal from credentials. It is
// the default when no real authenticator is wired in, matching this
// repository's Non-goal of not implementing auth primitives — deployments
// that set auth_required=true are expected to supply their own
// Authenticator.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Authenticate(*http.Request) (Principal, bool) {
	return Principal{}, false
}

// Gate implements the bridge/REST decision point of spec.md §4.4 step 1
// and the original implementation's require_principal: when auth is
// required, a valid principal must be resolvable or the call is
// Unauthorized; when auth is not required but anonymous terminals are
// disabled, the call is Forbidden; otherwise an anonymous, fully
// capable principal is granted — mirroring require_principal's
// Principal(username=None, is_admin=True) for the not-auth_required case.
func Gate(eff settings.Effective, authn Authenticator, r *http.Request) (Principal, error) {
	if eff.AuthRequired {
		p, ok := authn.Authenticate(r)
		if !ok {
			return Principal{}, brokererr.New(brokererr.Unauthorized, "authentication required")
		}
		return p, nil
	}

	if !eff.AllowAnonymousTerminal {
		return Principal{}, brokererr.New(brokererr.Forbidden, "anonymous terminal access disabled")
	}

	return Principal{Anonymous: true, IsAdmin: true}, nil
}
