package paymentsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/callogan/library-service-api/model"
	borrowrepo "github.com/callogan/library-service-api/repository/borrowing"
	notifyrepo "github.com/callogan/library-service-api/repository/notify"
	payrepo "github.com/callogan/library-service-api/repository/payment"
	striperepo "github.com/callogan/library-service-api/repository/stripe"
	"github.com/callogan/library-service-api/service/fee"
)

// errors used by controllers

type ErrCode string

const (
	ErrPaymentNotFound     ErrCode = "PAYMENT_NOT_FOUND"
	ErrPaymentNotConfirmed ErrCode = "PAYMENT_NOT_CONFIRMED"
	ErrPaymentProvider     ErrCode = "PAYMENT_PROVIDER_ERROR"
	ErrNotFoundOrForbidden ErrCode = "NOT_FOUND_OR_FORBIDDEN"
)

type codedError struct {
	code  ErrCode
	cause error
}

func (e codedError) Error() string {
	if e.cause != nil {
		return string(e.code) + ": " + e.cause.Error()
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.cause }

func makeErr(c ErrCode) error              { return codedError{code: c} }
func wrapErr(c ErrCode, cause error) error { return codedError{code: c, cause: cause} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// CancelGraceMessage is shown when the user bails out of checkout; the
// session itself stays payable until it expires.
const CancelGraceMessage = "You can make a payment during the next 16 hours."

const (
	RecreatedStatus   = "Session has been recreated"
	StillActiveStatus = "Session is still active"
)

// Recreated is the outcome of a recreate request.
type Recreated struct {
	Status  string         `json:"status"`
	Payment *model.Payment `json:"payment,omitempty"`
}

type Repo interface {
	Insert(ctx context.Context, p *model.Payment) error
	ByID(ctx context.Context, id int64) (*model.Payment, error)
	BySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	List(ctx context.Context, f payrepo.Filter) ([]model.Payment, error)
	MarkPaid(ctx context.Context, id int64) error
	ReplaceSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type BorrowingRepo interface {
	Get(ctx context.Context, id int64) (*borrowrepo.Detail, error)
}

type Service interface {
	// Open computes the total owed for a returned borrowing, requests an
	// external checkout session and persists a PENDING payment. The external
	// call happens before any local write; on provider failure nothing is
	// persisted.
	Open(ctx context.Context, borrowingID int64) (*model.Payment, error)

	// ReconcileSuccess transitions a payment to PAID once the provider
	// confirms completion.
	ReconcileSuccess(ctx context.Context, sessionID string) (*model.Payment, error)

	// Cancel is informational only: the session stays valid for the grace
	// window, no state changes.
	Cancel(ctx context.Context, sessionID string) (*model.Payment, string, error)

	// ExpireStale flips overdue PENDING payments to EXPIRED. Idempotent.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// Recreate opens a fresh session for an EXPIRED payment at the amount
	// already owed. On a payment that is not expired it is a no-op.
	Recreate(ctx context.Context, requester model.Requester, paymentID int64) (*Recreated, error)

	List(ctx context.Context, requester model.Requester, f payrepo.Filter) ([]model.Payment, error)
	Get(ctx context.Context, requester model.Requester, paymentID int64) (*model.Payment, error)
}

type service struct {
	r          Repo
	borrowings BorrowingRepo
	provider   striperepo.Repo
	notifier   notifyrepo.Notifier
	log        *slog.Logger

	successURL string
	cancelURL  string
	sessionTTL time.Duration
}

func New(
	r Repo,
	borrowings BorrowingRepo,
	provider striperepo.Repo,
	notifier notifyrepo.Notifier,
	log *slog.Logger,
	successURL, cancelURL string,
	sessionTTL time.Duration,
) Service {
	return &service{
		r:          r,
		borrowings: borrowings,
		provider:   provider,
		notifier:   notifier,
		log:        log,
		successURL: successURL,
		cancelURL:  cancelURL,
		sessionTTL: sessionTTL,
	}
}

func (s *service) Open(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	d, err := s.borrowings.Get(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFoundOrForbidden)
		}
		return nil, err
	}

	amount := fee.TotalOwed(&d.Borrowing, d.Book.DailyFee)
	expiresAt := time.Now().UTC().Add(s.sessionTTL)

	sess, err := s.provider.CreateSession(striperepo.CreateSessionReq{
		AmountCents: amount,
		Currency:    "usd",
		Description: sessionDescription(d),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, wrapErr(ErrPaymentProvider, err)
	}
	if !sess.ExpiresAt.IsZero() {
		expiresAt = sess.ExpiresAt
	}

	p := &model.Payment{
		BorrowingID: borrowingID,
		Status:      model.PaymentPending,
		SessionID:   sess.SessionID,
		SessionURL:  sess.SessionURL,
		AmountCents: amount,
		ExpiresAt:   expiresAt,
	}
	if err := s.r.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) ReconcileSuccess(ctx context.Context, sessionID string) (*model.Payment, error) {
	p, err := s.r.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrPaymentNotFound)
		}
		return nil, err
	}

	// The provider is authoritative; never trust the redirect alone.
	st, err := s.provider.RetrieveSession(sessionID)
	if err != nil {
		return nil, wrapErr(ErrPaymentProvider, err)
	}
	if st.PaymentStatus != "paid" {
		return nil, makeErr(ErrPaymentNotConfirmed)
	}

	if err := s.r.MarkPaid(ctx, p.ID); err != nil {
		if errors.Is(err, payrepo.ErrStatusConflict) && p.Status == model.PaymentPaid {
			// Re-running reconciliation on a settled payment keeps it settled.
			return p, nil
		}
		return nil, err
	}
	p.Status = model.PaymentPaid

	s.send(ctx, fmt.Sprintf(
		"Payment %d for borrowing %d has been completed (%d cents).",
		p.ID, p.BorrowingID, p.AmountCents,
	))
	return p, nil
}

func (s *service) Cancel(ctx context.Context, sessionID string) (*model.Payment, string, error) {
	p, err := s.r.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", makeErr(ErrPaymentNotFound)
		}
		return nil, "", err
	}
	return p, CancelGraceMessage, nil
}

func (s *service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.r.ExpireStale(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale payments", "count", n)
	}
	return n, nil
}

func (s *service) Recreate(ctx context.Context, requester model.Requester, paymentID int64) (*Recreated, error) {
	p, err := s.get(ctx, requester, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != model.PaymentExpired {
		// No provider call, no mutation.
		return &Recreated{Status: StillActiveStatus, Payment: p}, nil
	}

	d, err := s.borrowings.Get(ctx, p.BorrowingID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(s.sessionTTL)
	sess, err := s.provider.CreateSession(striperepo.CreateSessionReq{
		AmountCents: p.AmountCents,
		Currency:    "usd",
		Description: sessionDescription(d),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, wrapErr(ErrPaymentProvider, err)
	}
	if !sess.ExpiresAt.IsZero() {
		expiresAt = sess.ExpiresAt
	}

	if err := s.r.ReplaceSession(ctx, p.ID, sess.SessionID, sess.SessionURL, expiresAt); err != nil {
		if errors.Is(err, payrepo.ErrStatusConflict) {
			// Lost a race with a concurrent recreate or reconcile.
			cur, gerr := s.r.ByID(ctx, p.ID)
			if gerr != nil {
				return nil, gerr
			}
			return &Recreated{Status: StillActiveStatus, Payment: cur}, nil
		}
		return nil, err
	}

	p.Status = model.PaymentPending
	p.SessionID = sess.SessionID
	p.SessionURL = sess.SessionURL
	p.ExpiresAt = expiresAt
	return &Recreated{Status: RecreatedStatus, Payment: p}, nil
}

func (s *service) List(ctx context.Context, requester model.Requester, f payrepo.Filter) ([]model.Payment, error) {
	if !requester.Privileged {
		f.UserID = &requester.UserID
	}
	return s.r.List(ctx, f)
}

func (s *service) Get(ctx context.Context, requester model.Requester, paymentID int64) (*model.Payment, error) {
	return s.get(ctx, requester, paymentID)
}

func (s *service) get(ctx context.Context, requester model.Requester, paymentID int64) (*model.Payment, error) {
	p, err := s.r.ByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFoundOrForbidden)
		}
		return nil, err
	}
	if !requester.Privileged {
		d, err := s.borrowings.Get(ctx, p.BorrowingID)
		if err != nil {
			return nil, err
		}
		if d.Borrowing.UserID != requester.UserID {
			// Indistinguishable from "does not exist" on purpose.
			return nil, makeErr(ErrNotFoundOrForbidden)
		}
	}
	return p, nil
}

func (s *service) send(ctx context.Context, msg string) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Error("notification failed", "err", err)
	}
}

func sessionDescription(d *borrowrepo.Detail) string {
	b := &d.Borrowing
	if fee.IsLate(b) {
		rental := fee.RentalFee(b, d.Book.DailyFee)
		late := fee.LateFee(b, d.Book.DailyFee)
		return fmt.Sprintf(
			"Payment for borrowing of %s, consisting of rental fee amount %d and late fee amount %d",
			d.Book.Title, rental, late,
		)
	}
	return fmt.Sprintf(
		"Payment for borrowing of %s, including only rental fee amount %d",
		d.Book.Title, fee.RentalFee(b, d.Book.DailyFee),
	)
}
