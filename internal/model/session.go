package model

// Sentinel identity used for unauthenticated visitors so the rest of the
// code can treat signed-in and anonymous callers uniformly.
const (
	GuestUserID = "guest"
	GuestEmail  = "guest@tapa.ai"
)

// SessionKind discriminates the session union.
type SessionKind int

const (
	SessionGuest SessionKind = iota
	SessionAuthenticated
)

// Account is the identity carried by an authenticated session.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Session is either an authenticated account or the guest pseudo-account.
// Exactly one variant is active; sessions are replaced wholesale, never
// mutated in place.
type Session struct {
	Kind    SessionKind
	Account Account
}

// GuestSession returns the guest pseudo-identity.
func GuestSession() Session {
	return Session{
		Kind:    SessionGuest,
		Account: Account{ID: GuestUserID, Email: GuestEmail},
	}
}

// AuthenticatedSession wraps an account resolved from a valid token.
func AuthenticatedSession(acct Account) Session {
	return Session{Kind: SessionAuthenticated, Account: acct}
}

func (s Session) IsGuest() bool {
	return s.Kind == SessionGuest
}

// UserID returns the account id, or the guest sentinel for guests.
func (s Session) UserID() string {
	return s.Account.ID
}
