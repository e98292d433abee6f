package borrowing

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
)

// errors used by controllers

type ErrCode string

const (
	ErrBookNotFound        ErrCode = "BOOK_NOT_FOUND"
	ErrInventoryExhausted  ErrCode = "INVENTORY_EXHAUSTED"
	ErrUnpaidBalance       ErrCode = "UNPAID_BALANCE_EXISTS"
	ErrAlreadyReturned     ErrCode = "ALREADY_RETURNED"
	ErrNotFoundOrForbidden ErrCode = "NOT_FOUND_OR_FORBIDDEN"
	ErrInvalidReturnDate   ErrCode = "INVALID_RETURN_DATE"
	ErrPaymentProvider     ErrCode = "PAYMENT_PROVIDER_ERROR"
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

// ListFilter narrows List for privileged requesters. Non-privileged
// requesters are always pinned to their own records.
type ListFilter struct {
	UserID     *int64
	ActiveOnly *bool
}

// Row and Detail are the repository read shapes.
type (
	Row    = borrowrepo.Row
	Detail = borrowrepo.Detail
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error)
	SetReturned(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error
	Get(ctx context.Context, id int64) (*Detail, error)
	List(ctx context.Context, f borrowrepo.Filter) ([]Row, error)
}

type BookRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error)
	AdjustInventory(ctx context.Context, tx pgx.Tx, id int64, delta int64) error
}

// PaymentProbe answers the unpaid-balance eligibility question inside the
// borrow transaction.
type PaymentProbe interface {
	LatestStatusForUser(ctx context.Context, tx pgx.Tx, userID int64) (model.PaymentStatus, bool, error)
}

// SessionOpener opens the checkout session after a return commits.
type SessionOpener interface {
	Open(ctx context.Context, borrowingID int64) (*model.Payment, error)
}

type Service interface {
	// Create borrows one copy: checks inventory and the unpaid-balance rule,
	// then inserts the borrowing and decrements inventory in one transaction.
	Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error)

	// Return closes the borrowing, restores inventory and opens a payment
	// session for the total owed. The session is opened after the return
	// transaction commits so no external call runs under a row lock.
	Return(ctx context.Context, requester model.Requester, borrowingID int64) (*model.Borrowing, *model.Payment, error)

	List(ctx context.Context, requester model.Requester, f ListFilter) ([]Row, error)
	Get(ctx context.Context, requester model.Requester, borrowingID int64) (*Detail, error)
}

type service struct {
	db       DB
	r        Repo
	books    BookRepo
	payments PaymentProbe
	sessions SessionOpener
	notifier notifyrepo.Notifier
	log      *slog.Logger
}

func New(
	db DB,
	r Repo,
	books BookRepo,
	payments PaymentProbe,
	sessions SessionOpener,
	notifier notifyrepo.Notifier,
	log *slog.Logger,
) Service {
	return &service{
		db:       db,
		r:        r,
		books:    books,
		payments: payments,
		sessions: sessions,
		notifier: notifier,
		log:      log,
	}
}

func (s *service) Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (b *model.Borrowing, err error) {
	today := dateOnly(time.Now().UTC())
	expectedReturn = dateOnly(expectedReturn)
	if expectedReturn.Before(today) {
		return nil, makeErr(ErrInvalidReturnDate)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Locks the book row; concurrent borrows of the same book serialize here.
	book, err := s.books.GetForUpdate(ctx, tx, bookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrBookNotFound)
		}
		return nil, err
	}
	if book.Inventory < 1 {
		return nil, makeErr(ErrInventoryExhausted)
	}

	latest, found, err := s.payments.LatestStatusForUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if found && latest == model.PaymentPending {
		return nil, makeErr(ErrUnpaidBalance)
	}

	b = &model.Borrowing{
		BookID:             bookID,
		UserID:             userID,
		BorrowDate:         today,
		ExpectedReturnDate: expectedReturn,
	}
	if err = s.r.Insert(ctx, tx, b); err != nil {
		return nil, err
	}
	if err = s.books.AdjustInventory(ctx, tx, bookID, -1); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Post-commit, best effort: the borrowing stands whether or not the
	// message goes out.
	s.send(ctx, fmt.Sprintf(
		"The borrowing of the book '%s' has been confirmed.\nPlease return it by %s.",
		book.Title, expectedReturn.Format("2006-01-02"),
	))

	return b, nil
}

func (s *service) Return(ctx context.Context, requester model.Requester, borrowingID int64) (b *model.Borrowing, p *model.Payment, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	b, err = s.r.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, makeErr(ErrNotFoundOrForbidden)
		}
		return nil, nil, err
	}
	if !requester.Privileged && b.UserID != requester.UserID {
		return nil, nil, makeErr(ErrNotFoundOrForbidden)
	}
	if b.ActualReturnDate != nil {
		return nil, nil, makeErr(ErrAlreadyReturned)
	}

	returnedAt := dateOnly(time.Now().UTC())
	if err = s.r.SetReturned(ctx, tx, borrowingID, returnedAt); err != nil {
		return nil, nil, err
	}
	if err = s.books.AdjustInventory(ctx, tx, b.BookID, +1); err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	b.ActualReturnDate = &returnedAt

	p, perr := s.sessions.Open(ctx, b.ID)
	if perr != nil {
		// The return itself is committed; the session can be opened again
		// later through a recreate once a payment exists, or by the admin
		// open endpoint.
		return b, nil, wrapErr(ErrPaymentProvider, perr)
	}
	return b, p, nil
}

func (s *service) List(ctx context.Context, requester model.Requester, f ListFilter) ([]Row, error) {
	rf := borrowrepo.Filter{UserID: f.UserID, ActiveOnly: f.ActiveOnly}
	if !requester.Privileged {
		rf.UserID = &requester.UserID
	}
	return s.r.List(ctx, rf)
}

func (s *service) Get(ctx context.Context, requester model.Requester, borrowingID int64) (*Detail, error) {
	d, err := s.r.Get(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, makeErr(ErrNotFoundOrForbidden)
		}
		return nil, err
	}
	if !requester.Privileged && d.Borrowing.UserID != requester.UserID {
		return nil, makeErr(ErrNotFoundOrForbidden)
	}
	return d, nil
}

func (s *service) send(ctx context.Context, msg string) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Error("notification failed", "err", err)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
