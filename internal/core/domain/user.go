package domain

type UserID string

// Session is the authenticated identity attached to a request.
type Session struct {
	User     UserID
	Username string
}
