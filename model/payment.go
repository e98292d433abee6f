// model/payment.go
package model

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentExpired PaymentStatus = "EXPIRED"
)

// Payment tracks one external checkout session for a borrowing. A borrowing
// can accumulate several payments over time (expire + recreate), but at most
// one of them should be PENDING.
type Payment struct {
	ID          int64         `json:"id"`
	BorrowingID int64         `json:"borrowing_id"`
	Status      PaymentStatus `json:"status"`
	SessionID   string        `json:"session_id"`
	SessionURL  string        `json:"session_url"`
	AmountCents int64         `json:"amount_cents"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
}
