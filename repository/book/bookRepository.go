package bookrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callogan/library-service-api/model"
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)

	// GetForUpdate locks the book row for the duration of tx. The borrow and
	// return transactions serialize on this lock.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error)
	AdjustInventory(ctx context.Context, tx pgx.Tx, id int64, delta int64) error
}

type repo struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, b *model.Book) (int64, error) {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repo) AddInventory(ctx context.Context, bookID int64, n int64) error {
	if n <= 0 {
		return errors.New("n must be > 0")
	}
	const q = `UPDATE books SET inventory = inventory + $2 WHERE id = $1`
	ct, err := r.db.Exec(ctx, q, bookID, n)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
	SELECT id, title, author, cover, inventory, daily_fee
	FROM books
	ORDER BY title, id`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
WHERE id = $1`
	var b model.Book
	if err := scanBook(r.db.QueryRow(ctx, q, id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		WHERE id = $1
		FOR UPDATE`
	var b model.Book
	if err := scanBook(tx.QueryRow(ctx, q, id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) AdjustInventory(ctx context.Context, tx pgx.Tx, id int64, delta int64) error {
	// Guard: never let inventory drop below zero.
	const q = `
			UPDATE books
			SET inventory = inventory + $2
			WHERE id = $1
			AND inventory + $2 >= 0`
	ct, err := tx.Exec(ctx, q, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("inventory adjustment rejected")
	}
	return nil
}

func scanBook(row pgx.Row, b *model.Book) error {
	return row.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee)
}
