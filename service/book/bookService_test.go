// service/book/book_service_test.go
package booksvc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/callogan/library-service-api/model"
	booksvc "github.com/callogan/library-service-api/service/book"
)

type repoMock struct {
	createFn       func(ctx context.Context, b *model.Book) (int64, error)
	addInventoryFn func(ctx context.Context, bookID int64, n int64) error
	listFn         func(ctx context.Context) ([]model.Book, error)
	detailFn       func(ctx context.Context, id int64) (*model.Book, error)
}

func (m *repoMock) Create(ctx context.Context, b *model.Book) (int64, error) {
	return m.createFn(ctx, b)
}
func (m *repoMock) AddInventory(ctx context.Context, bookID int64, n int64) error {
	return m.addInventoryFn(ctx, bookID, n)
}
func (m *repoMock) List(ctx context.Context) ([]model.Book, error) { return m.listFn(ctx) }
func (m *repoMock) Detail(ctx context.Context, id int64) (*model.Book, error) {
	return m.detailFn(ctx, id)
}

func TestCreate_Validation(t *testing.T) {
	s := booksvc.New(&repoMock{})
	fee := decimal.RequireFromString("10.00")

	if _, err := s.Create(context.Background(), "", "Shevchenko", model.CoverHard, 3, fee); err == nil {
		t.Fatal("expected error for empty title")
	}
	if _, err := s.Create(context.Background(), "Kobzar", "", model.CoverHard, 3, fee); err == nil {
		t.Fatal("expected error for empty author")
	}
	if _, err := s.Create(context.Background(), "Kobzar", "Shevchenko", "SPIRAL", 3, fee); err == nil {
		t.Fatal("expected error for bad cover")
	}
	if _, err := s.Create(context.Background(), "Kobzar", "Shevchenko", model.CoverHard, -1, fee); err == nil {
		t.Fatal("expected error for negative inventory")
	}
	if _, err := s.Create(context.Background(), "Kobzar", "Shevchenko", model.CoverHard, 3, decimal.RequireFromString("-1")); err == nil {
		t.Fatal("expected error for negative fee")
	}
}

func TestCreate_Success(t *testing.T) {
	m := &repoMock{
		createFn: func(ctx context.Context, b *model.Book) (int64, error) {
			if b.Title != "Kobzar" || b.Author != "Shevchenko" || b.Inventory != 3 {
				return 0, errors.New("bad args")
			}
			return 42, nil
		},
	}
	s := booksvc.New(m)
	id, err := s.Create(context.Background(), "Kobzar", "Shevchenko", model.CoverHard, 3, decimal.RequireFromString("10.00"))
	if err != nil || id != 42 {
		t.Fatalf("got id=%v err=%v; want 42 nil", id, err)
	}
}

func TestPassThroughs(t *testing.T) {
	m := &repoMock{
		addInventoryFn: func(ctx context.Context, bookID int64, n int64) error { return nil },
		listFn:         func(ctx context.Context) ([]model.Book, error) { return nil, nil },
		detailFn:       func(ctx context.Context, id int64) (*model.Book, error) { return &model.Book{}, nil },
	}
	s := booksvc.New(m)

	if err := s.AddInventory(context.Background(), 7, 3); err != nil {
		t.Fatalf("AddInventory error: %v", err)
	}
	if _, err := s.List(context.Background()); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if _, err := s.Detail(context.Background(), 99); err != nil {
		t.Fatalf("Detail error: %v", err)
	}
}
