package booksvc

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/callogan/library-service-api/model"
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Create(ctx context.Context, title, author string, cover model.CoverType, inventory int64, dailyFee decimal.Decimal) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) Create(ctx context.Context, title, author string, cover model.CoverType, inventory int64, dailyFee decimal.Decimal) (int64, error) {
	if title == "" || author == "" {
		return 0, errors.New("invalid payload")
	}
	if cover != model.CoverHard && cover != model.CoverSoft {
		return 0, errors.New("invalid cover type")
	}
	if inventory < 0 || dailyFee.IsNegative() {
		return 0, errors.New("invalid payload")
	}
	return s.r.Create(ctx, &model.Book{
		Title:     title,
		Author:    author,
		Cover:     cover,
		Inventory: inventory,
		DailyFee:  dailyFee,
	})
}

func (s *service) AddInventory(ctx context.Context, bookID int64, n int64) error {
	return s.r.AddInventory(ctx, bookID, n)
}
func (s *service) List(ctx context.Context) ([]model.Book, error)            { return s.r.List(ctx) }
func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) { return s.r.Detail(ctx, id) }
