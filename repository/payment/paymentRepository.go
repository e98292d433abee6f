package payrepo

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callogan/library-service-api/model"
)

// ErrStatusConflict means a status-guarded update matched no row: the payment
// was not in the status the transition requires.
var ErrStatusConflict = errors.New("payment not in required status")

// Filter narrows List.
type Filter struct {
	UserID *int64
	Status *model.PaymentStatus
}

type Repo interface {
	Insert(ctx context.Context, p *model.Payment) error
	ByID(ctx context.Context, id int64) (*model.Payment, error)
	BySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	List(ctx context.Context, f Filter) ([]model.Payment, error)

	// MarkPaid transitions PENDING -> PAID.
	MarkPaid(ctx context.Context, id int64) error

	// ReplaceSession swaps in a fresh external session on an EXPIRED payment
	// and resets it to PENDING.
	ReplaceSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error

	// ExpireStale flips every PENDING payment past its expiry to EXPIRED and
	// reports how many rows changed. Safe to re-run.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// LatestStatusForUser returns the status of the most recently created
	// payment across all of the user's borrowings (ties broken by id).
	LatestStatusForUser(ctx context.Context, tx pgx.Tx, userID int64) (model.PaymentStatus, bool, error)
}

type repo struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) Repo { return &repo{db: db} }

var pg = goqu.Dialect("postgres")

const paymentCols = `id, borrowing_id, status, session_id, session_url, amount_cents, expires_at, created_at`

func (r *repo) Insert(ctx context.Context, p *model.Payment) error {
	const q = `
		INSERT INTO payments (borrowing_id, status, session_id, session_url, amount_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, q,
		p.BorrowingID, p.Status, p.SessionID, p.SessionURL, p.AmountCents, p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *repo) ByID(ctx context.Context, id int64) (*model.Payment, error) {
	return r.one(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id)
}

func (r *repo) BySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	return r.one(ctx, `SELECT `+paymentCols+` FROM payments WHERE session_id = $1`, sessionID)
}

func (r *repo) one(ctx context.Context, q string, arg any) (*model.Payment, error) {
	var p model.Payment
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&p.ID, &p.BorrowingID, &p.Status, &p.SessionID, &p.SessionURL,
		&p.AmountCents, &p.ExpiresAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.Payment, error) {
	ds := pg.From(goqu.T("payments").As("p")).
		Select(
			goqu.I("p.id"), goqu.I("p.borrowing_id"), goqu.I("p.status"),
			goqu.I("p.session_id"), goqu.I("p.session_url"),
			goqu.I("p.amount_cents"), goqu.I("p.expires_at"), goqu.I("p.created_at"),
		).
		Order(goqu.I("p.created_at").Desc(), goqu.I("p.id").Desc())

	if f.UserID != nil {
		ds = ds.Join(goqu.T("borrowings").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("p.borrowing_id")))).
			Where(goqu.I("br.user_id").Eq(*f.UserID))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.I("p.status").Eq(string(*f.Status)))
	}

	sql, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(
			&p.ID, &p.BorrowingID, &p.Status, &p.SessionID, &p.SessionURL,
			&p.AmountCents, &p.ExpiresAt, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) MarkPaid(ctx context.Context, id int64) error {
	const q = `
		UPDATE payments
		SET status = 'PAID'
		WHERE id = $1
		AND status = 'PENDING'`
	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *repo) ReplaceSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error {
	const q = `
		UPDATE payments
		SET status = 'PENDING',
			session_id = $2,
			session_url = $3,
			expires_at = $4
		WHERE id = $1
		AND status = 'EXPIRED'`
	ct, err := r.db.Exec(ctx, q, id, sessionID, sessionURL, expiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *repo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const q = `
		UPDATE payments
		SET status = 'EXPIRED'
		WHERE status = 'PENDING'
		AND expires_at <= $1`
	ct, err := r.db.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *repo) LatestStatusForUser(ctx context.Context, tx pgx.Tx, userID int64) (model.PaymentStatus, bool, error) {
	const q = `
		SELECT p.status
		FROM payments p
		JOIN borrowings br ON br.id = p.borrowing_id
		WHERE br.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT 1`
	var st model.PaymentStatus
	err := tx.QueryRow(ctx, q, userID).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return st, true, nil
}
