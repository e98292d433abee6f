package borrowing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/callogan/library-service-api/model"
	borrowrepo "github.com/callogan/library-service-api/repository/borrowing"
	"github.com/callogan/library-service-api/service/borrowing"
)

// --- mocks ---

type txMock struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *txMock) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *txMock) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type dbMock struct{ tx *txMock }

func (d *dbMock) Begin(ctx context.Context) (pgx.Tx, error) { return d.tx, nil }

type repoMock struct {
	insertFn       func(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error
	getForUpdateFn func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error)
	setReturnedFn  func(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error
	getFn          func(ctx context.Context, id int64) (*borrowrepo.Detail, error)
	listFn         func(ctx context.Context, f borrowrepo.Filter) ([]borrowrepo.Row, error)
}

func (m *repoMock) Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error {
	return m.insertFn(ctx, tx, b)
}
func (m *repoMock) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
	return m.getForUpdateFn(ctx, tx, id)
}
func (m *repoMock) SetReturned(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
	return m.setReturnedFn(ctx, tx, id, at)
}
func (m *repoMock) Get(ctx context.Context, id int64) (*borrowrepo.Detail, error) {
	return m.getFn(ctx, id)
}
func (m *repoMock) List(ctx context.Context, f borrowrepo.Filter) ([]borrowrepo.Row, error) {
	return m.listFn(ctx, f)
}

type bookRepoMock struct {
	book    *model.Book
	getErr  error
	adjusts []int64
}

func (m *bookRepoMock) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.book, nil
}
func (m *bookRepoMock) AdjustInventory(ctx context.Context, tx pgx.Tx, id int64, delta int64) error {
	m.adjusts = append(m.adjusts, delta)
	return nil
}

type probeMock struct {
	status model.PaymentStatus
	found  bool
}

func (m *probeMock) LatestStatusForUser(ctx context.Context, tx pgx.Tx, userID int64) (model.PaymentStatus, bool, error) {
	return m.status, m.found, nil
}

type openerMock struct {
	payment *model.Payment
	err     error
	calls   []int64
}

func (m *openerMock) Open(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	m.calls = append(m.calls, borrowingID)
	if m.err != nil {
		return nil, m.err
	}
	return m.payment, nil
}

type notifierMock struct{ messages []string }

func (m *notifierMock) Notify(ctx context.Context, message string) error {
	m.messages = append(m.messages, message)
	return nil
}

type fixture struct {
	tx       *txMock
	repo     *repoMock
	books    *bookRepoMock
	probe    *probeMock
	opener   *openerMock
	notifier *notifierMock
	svc      borrowing.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tx:       &txMock{},
		repo:     &repoMock{},
		books:    &bookRepoMock{book: &model.Book{ID: 1, Title: "Kobzar", Inventory: 3, DailyFee: decimal.RequireFromString("10.00")}},
		probe:    &probeMock{},
		opener:   &openerMock{payment: &model.Payment{ID: 5, Status: model.PaymentPending}},
		notifier: &notifierMock{},
	}
	f.svc = borrowing.New(
		&dbMock{tx: f.tx}, f.repo, f.books, f.probe, f.opener, f.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func in10Days() time.Time { return time.Now().UTC().Add(10 * 24 * time.Hour) }

// --- create ---

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)
	f.repo.insertFn = func(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error {
		b.ID = 42
		return nil
	}

	b, err := f.svc.Create(context.Background(), 7, 1, in10Days())
	require.NoError(t, err)
	require.Equal(t, int64(42), b.ID)
	require.Nil(t, b.ActualReturnDate)
	require.Equal(t, []int64{-1}, f.books.adjusts)
	require.True(t, f.tx.committed)
	require.False(t, f.tx.rolledBack)
	require.Len(t, f.notifier.messages, 1)
	require.Contains(t, f.notifier.messages[0], "Kobzar")
}

func TestCreate_InventoryExhausted(t *testing.T) {
	f := newFixture(t)
	f.books.book.Inventory = 0

	_, err := f.svc.Create(context.Background(), 7, 1, in10Days())
	require.Error(t, err)
	require.Equal(t, borrowing.ErrInventoryExhausted, borrowing.Code(err))
	require.Empty(t, f.books.adjusts)
	require.True(t, f.tx.rolledBack)
	require.Empty(t, f.notifier.messages)
}

func TestCreate_BookNotFound(t *testing.T) {
	f := newFixture(t)
	f.books.getErr = pgx.ErrNoRows

	_, err := f.svc.Create(context.Background(), 7, 99, in10Days())
	require.Equal(t, borrowing.ErrBookNotFound, borrowing.Code(err))
}

func TestCreate_BlockedByPendingPayment(t *testing.T) {
	f := newFixture(t)
	f.probe.status = model.PaymentPending
	f.probe.found = true

	_, err := f.svc.Create(context.Background(), 7, 1, in10Days())
	require.Equal(t, borrowing.ErrUnpaidBalance, borrowing.Code(err))
	require.True(t, f.tx.rolledBack)
}

func TestCreate_AllowedOnceSettledOrExpired(t *testing.T) {
	for _, st := range []model.PaymentStatus{model.PaymentPaid, model.PaymentExpired} {
		f := newFixture(t)
		f.probe.status = st
		f.probe.found = true
		f.repo.insertFn = func(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error {
			b.ID = 1
			return nil
		}

		_, err := f.svc.Create(context.Background(), 7, 1, in10Days())
		require.NoError(t, err, "status %s must not block", st)
	}
}

func TestCreate_PastReturnDateRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), 7, 1, time.Now().UTC().Add(-48*time.Hour))
	require.Equal(t, borrowing.ErrInvalidReturnDate, borrowing.Code(err))
	require.False(t, f.tx.committed)
	require.False(t, f.tx.rolledBack)
}

// --- return ---

func openBorrowing(userID int64) *model.Borrowing {
	return &model.Borrowing{
		ID:                 42,
		BookID:             1,
		UserID:             userID,
		BorrowDate:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ExpectedReturnDate: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
	}
}

func TestReturn_Success(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(7), nil
	}
	var returnedAt time.Time
	f.repo.setReturnedFn = func(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
		returnedAt = at
		return nil
	}

	b, p, err := f.svc.Return(context.Background(), model.Requester{UserID: 7}, 42)
	require.NoError(t, err)
	require.NotNil(t, b.ActualReturnDate)
	require.Equal(t, returnedAt, *b.ActualReturnDate)
	require.Equal(t, []int64{+1}, f.books.adjusts)
	require.True(t, f.tx.committed)
	require.Equal(t, []int64{42}, f.opener.calls)
	require.Equal(t, int64(5), p.ID)
}

func TestReturn_NotOwner(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(99), nil
	}

	_, _, err := f.svc.Return(context.Background(), model.Requester{UserID: 7}, 42)
	require.Equal(t, borrowing.ErrNotFoundOrForbidden, borrowing.Code(err))
	require.Empty(t, f.books.adjusts)
	require.True(t, f.tx.rolledBack)
}

func TestReturn_PrivilegedMayReturnForOthers(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(99), nil
	}
	f.repo.setReturnedFn = func(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
		return nil
	}

	_, _, err := f.svc.Return(context.Background(), model.Requester{UserID: 7, Privileged: true}, 42)
	require.NoError(t, err)
}

func TestReturn_AlreadyReturned(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		b := openBorrowing(7)
		at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		b.ActualReturnDate = &at
		return b, nil
	}

	_, _, err := f.svc.Return(context.Background(), model.Requester{UserID: 7}, 42)
	require.Equal(t, borrowing.ErrAlreadyReturned, borrowing.Code(err))
	require.Empty(t, f.books.adjusts)
	require.Empty(t, f.opener.calls)
	require.True(t, f.tx.rolledBack)
	require.False(t, f.tx.committed)
}

func TestReturn_MissingBorrowing(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		return nil, pgx.ErrNoRows
	}

	_, _, err := f.svc.Return(context.Background(), model.Requester{UserID: 7}, 404)
	require.Equal(t, borrowing.ErrNotFoundOrForbidden, borrowing.Code(err))
}

func TestReturn_ProviderFailureKeepsReturn(t *testing.T) {
	f := newFixture(t)
	f.repo.getForUpdateFn = func(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(7), nil
	}
	f.repo.setReturnedFn = func(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
		return nil
	}
	f.opener.err = errors.New("stripe down")

	b, p, err := f.svc.Return(context.Background(), model.Requester{UserID: 7}, 42)
	require.Equal(t, borrowing.ErrPaymentProvider, borrowing.Code(err))
	require.NotNil(t, b)
	require.NotNil(t, b.ActualReturnDate)
	require.Nil(t, p)
	require.True(t, f.tx.committed)
}

// --- list / get ---

func TestList_NonPrivilegedPinnedToOwnRecords(t *testing.T) {
	f := newFixture(t)
	other := int64(99)
	var got borrowrepo.Filter
	f.repo.listFn = func(ctx context.Context, rf borrowrepo.Filter) ([]borrowrepo.Row, error) {
		got = rf
		return nil, nil
	}

	_, err := f.svc.List(context.Background(), model.Requester{UserID: 7}, borrowing.ListFilter{UserID: &other})
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	require.Equal(t, int64(7), *got.UserID)
}

func TestList_PrivilegedMayFilterByUser(t *testing.T) {
	f := newFixture(t)
	other := int64(99)
	active := true
	var got borrowrepo.Filter
	f.repo.listFn = func(ctx context.Context, rf borrowrepo.Filter) ([]borrowrepo.Row, error) {
		got = rf
		return nil, nil
	}

	_, err := f.svc.List(context.Background(), model.Requester{UserID: 7, Privileged: true},
		borrowing.ListFilter{UserID: &other, ActiveOnly: &active})
	require.NoError(t, err)
	require.Equal(t, int64(99), *got.UserID)
	require.True(t, *got.ActiveOnly)
}

func TestGet_HidesForeignRecords(t *testing.T) {
	f := newFixture(t)
	f.repo.getFn = func(ctx context.Context, id int64) (*borrowrepo.Detail, error) {
		return &borrowrepo.Detail{Borrowing: *openBorrowing(99)}, nil
	}

	_, err := f.svc.Get(context.Background(), model.Requester{UserID: 7}, 42)
	require.Equal(t, borrowing.ErrNotFoundOrForbidden, borrowing.Code(err))
}
