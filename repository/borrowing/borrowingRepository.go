package borrowrepo

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callogan/library-service-api/model"
)

// Row is the list shape: a borrowing joined with its book title.
type Row struct {
	ID                 int64      `json:"id"`
	BookID             int64      `json:"book_id"`
	BookTitle          string     `json:"book_title"`
	UserID             int64      `json:"user_id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
}

// Detail embeds the full book record.
type Detail struct {
	Borrowing model.Borrowing `json:"borrowing"`
	Book      model.Book      `json:"book"`
	UserEmail string          `json:"user_email"`
}

// Filter narrows List. Nil fields mean "no constraint".
type Filter struct {
	UserID     *int64
	ActiveOnly *bool
}

// DueRow feeds the overdue scan.
type DueRow struct {
	BorrowingID        int64
	BookTitle          string
	UserID             int64
	ExpectedReturnDate time.Time
}

type Repo interface {
	Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error)
	SetReturned(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error

	Get(ctx context.Context, id int64) (*Detail, error)
	List(ctx context.Context, f Filter) ([]Row, error)

	// ListDueBy returns open borrowings whose expected return date is on or
	// before deadline.
	ListDueBy(ctx context.Context, deadline time.Time) ([]DueRow, error)
}

type repo struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) Repo { return &repo{db: db} }

var pg = goqu.Dialect("postgres")

func (r *repo) Insert(ctx context.Context, tx pgx.Tx, b *model.Borrowing) error {
	const q = `
		INSERT INTO borrowings (book_id, user_id, borrow_date, expected_return_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return tx.QueryRow(ctx, q, b.BookID, b.UserID, b.BorrowDate, b.ExpectedReturnDate).Scan(&b.ID)
}

func (r *repo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Borrowing, error) {
	const q = `
		SELECT id, book_id, user_id, borrow_date, expected_return_date, actual_return_date
		FROM borrowings
		WHERE id = $1
		FOR UPDATE`
	var b model.Borrowing
	err := tx.QueryRow(ctx, q, id).Scan(
		&b.ID, &b.BookID, &b.UserID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) SetReturned(ctx context.Context, tx pgx.Tx, id int64, at time.Time) error {
	// actual_return_date is written exactly once.
	const q = `
		UPDATE borrowings
		SET actual_return_date = $2
		WHERE id = $1
		AND actual_return_date IS NULL`
	ct, err := tx.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repo) Get(ctx context.Context, id int64) (*Detail, error) {
	const q = `
		SELECT br.id, br.book_id, br.user_id, br.borrow_date, br.expected_return_date, br.actual_return_date,
		       b.id, b.title, b.author, b.cover, b.inventory, b.daily_fee,
		       u.email
		FROM borrowings br
		JOIN books b ON b.id = br.book_id
		JOIN users u ON u.id = br.user_id
		WHERE br.id = $1`
	var d Detail
	err := r.db.QueryRow(ctx, q, id).Scan(
		&d.Borrowing.ID, &d.Borrowing.BookID, &d.Borrowing.UserID,
		&d.Borrowing.BorrowDate, &d.Borrowing.ExpectedReturnDate, &d.Borrowing.ActualReturnDate,
		&d.Book.ID, &d.Book.Title, &d.Book.Author, &d.Book.Cover, &d.Book.Inventory, &d.Book.DailyFee,
		&d.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]Row, error) {
	ds := pg.From(goqu.T("borrowings").As("br")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		Select(
			goqu.I("br.id"), goqu.I("br.book_id"), goqu.I("b.title"), goqu.I("br.user_id"),
			goqu.I("br.borrow_date"), goqu.I("br.expected_return_date"), goqu.I("br.actual_return_date"),
		).
		Order(goqu.I("br.borrow_date").Asc(), goqu.I("br.id").Asc())

	if f.UserID != nil {
		ds = ds.Where(goqu.I("br.user_id").Eq(*f.UserID))
	}
	if f.ActiveOnly != nil {
		if *f.ActiveOnly {
			ds = ds.Where(goqu.I("br.actual_return_date").IsNull())
		} else {
			ds = ds.Where(goqu.I("br.actual_return_date").IsNotNull())
		}
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

	var out []Row
	for rows.Next() {
		var h Row
		if err := rows.Scan(
			&h.ID, &h.BookID, &h.BookTitle, &h.UserID,
			&h.BorrowDate, &h.ExpectedReturnDate, &h.ActualReturnDate,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repo) ListDueBy(ctx context.Context, deadline time.Time) ([]DueRow, error) {
	const q = `
		SELECT br.id, b.title, br.user_id, br.expected_return_date
		FROM borrowings br
		JOIN books b ON b.id = br.book_id
		WHERE br.actual_return_date IS NULL
		AND br.expected_return_date <= $1
		ORDER BY br.expected_return_date, br.id`
	rows, err := r.db.Query(ctx, q, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueRow
	for rows.Next() {
		var d DueRow
		if err := rows.Scan(&d.BorrowingID, &d.BookTitle, &d.UserID, &d.ExpectedReturnDate); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
