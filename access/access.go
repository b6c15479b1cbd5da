/*
Package access provides caller authorization for the batch services.

PURPOSE:
  Two layers of authorization exist:

  1. Identity check (this package): is this caller known to the system at
     all, and does the request carry a valid signature? Failure is a hard
     abort of the whole call.

  2. Role check (per service): is this caller the service admin, or the
     record's counterparty for release-type operations? Lives in each
     service because it depends on record state.

SIGNATURES:
  The HTTP layer verifies an HMAC-SHA256 signature over the request body
  when a shared key is configured. The Verifier here is transport-agnostic;
  api/ wires it to headers.

SEE ALSO:
  - api/handlers.go: Header extraction and signature wiring
*/
package access

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/warp/ledger-engine/engine"
)

// Authorizer decides whether a caller may enter the system at all.
// A failure is surfaced as engine.ErrUnauthorized and hard-aborts the call.
type Authorizer interface {
	Authorize(ctx context.Context, caller engine.Caller) error
}

// =============================================================================
// ALLOWLIST
// =============================================================================

// Allowlist authorizes only registered callers.
type Allowlist struct {
	mu      sync.RWMutex
	callers map[engine.Caller]struct{}
}

func NewAllowlist(callers ...engine.Caller) *Allowlist {
	a := &Allowlist{callers: make(map[engine.Caller]struct{}, len(callers))}
	for _, c := range callers {
		a.callers[c] = struct{}{}
	}
	return a
}

// Add registers a caller.
func (a *Allowlist) Add(caller engine.Caller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callers[caller] = struct{}{}
}

func (a *Allowlist) Authorize(_ context.Context, caller engine.Caller) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.callers[caller]; !ok {
		return engine.ErrUnauthorized
	}
	return nil
}

// AllowAll authorizes every non-empty caller. Dev/test use.
type AllowAll struct{}

func (AllowAll) Authorize(_ context.Context, caller engine.Caller) error {
	if caller == "" {
		return engine.ErrUnauthorized
	}
	return nil
}

// =============================================================================
// REQUEST SIGNATURES
// =============================================================================

// Verifier checks HMAC-SHA256 request signatures.
type Verifier struct {
	key []byte
}

// NewVerifier creates a verifier; an empty key disables verification.
func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key}
}

// Enabled reports whether a signing key is configured.
func (v *Verifier) Enabled() bool { return len(v.key) > 0 }

// Sign computes the hex signature for a payload. Used by tests and clients.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature against a payload in constant time.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		return true
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}
