package auth

import (
	"strings"
	"time"

	"github.com/sakif/platidea/internal/model"
)

// Principal is the resolved identity of a request's caller.
//
// The zero value is the anonymous principal. A Principal is rebuilt from the
// session store on every request and passed by value into the service layer;
// services never look identity up themselves.
type Principal struct {
	userID string
}

// Anonymous returns the principal of a caller with no valid session.
func Anonymous() Principal {
	return Principal{}
}

// NewPrincipal returns the principal for userID in canonical form (see
// CanonicalID). A blank id yields Anonymous.
func NewPrincipal(userID string) Principal {
	return Principal{userID: CanonicalID(userID)}
}

// ID is the user id, or "" for the anonymous principal.
func (p Principal) ID() string {
	return p.userID
}

// IsAnonymous reports whether the caller is unauthenticated.
func (p Principal) IsAnonymous() bool {
	return p.userID == ""
}

// Owns reports whether p is the identity recorded as authorID.
// Anonymous never owns anything.
func (p Principal) Owns(authorID string) bool {
	return !p.IsAnonymous() && SameIdentity(p.userID, authorID)
}

func (p Principal) String() string {
	if p.IsAnonymous() {
		return "anonymous"
	}
	return p.userID
}

// CanonicalID is the one form a user id takes inside the core: trimmed and
// lower-cased. Every id written to a store comes from Principal.ID, so stored
// voter and author ids are canonical and the stores can match them exactly.
func CanonicalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SameIdentity reports whether a and b name the same user once both are in
// canonical form. Blank ids never match.
func SameIdentity(a, b string) bool {
	a, b = CanonicalID(a), CanonicalID(b)
	return a != "" && a == b
}

// Resolve turns a session record into a principal at instant now.
// A missing, expired or user-less session resolves to Anonymous.
func Resolve(sess *model.Session, now time.Time) Principal {
	if sess == nil || sess.Expired(now) {
		return Anonymous()
	}
	return NewPrincipal(sess.UserID)
}
