package striperepo

import "time"

type CreateSessionReq struct {
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

type Session struct {
	SessionID  string
	SessionURL string
	ExpiresAt  time.Time
}

type SessionStatus struct {
	// PaymentStatus is "paid" once the provider has collected the money.
	PaymentStatus string
}

// Repo is the checkout-session contract the payment service consumes. The
// provider is the source of truth for payment completion.
type Repo interface {
	CreateSession(req CreateSessionReq) (*Session, error)
	RetrieveSession(sessionID string) (*SessionStatus, error)
}
