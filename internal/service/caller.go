package service

// Caller identifies who a request acts for: a logged-in user, an anonymous cart session,
// or both right after login.
type Caller struct {
	UserID    string
	SessionID string
}

func (c Caller) SessionOwner() string {
	if c.SessionID == "" {
		return ""
	}
	return "session:" + c.SessionID
}

// Owner is the cart owner key the caller's requests apply to.
func (c Caller) Owner() string {
	if c.UserID != "" {
		return "user:" + c.UserID
	}
	return c.SessionOwner()
}
