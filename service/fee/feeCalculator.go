// Package fee computes what a borrowing costs, in minor currency units.
// Pure functions: everything is derived from the borrowing's dates and the
// book's daily fee, so results are deterministic and trivially testable.
package fee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/callogan/library-service-api/model"
)

const LateFeeMultiplier = 2

var hundred = decimal.NewFromInt(100)

// RentalFee charges the planned period: daily_fee * (expected - borrow) days,
// truncated toward zero to whole cents.
func RentalFee(b *model.Borrowing, dailyFee decimal.Decimal) int64 {
	days := daysBetween(b.BorrowDate, b.ExpectedReturnDate)
	return dailyFee.Mul(decimal.NewFromInt(days)).Mul(hundred).IntPart()
}

// LateFee charges double the daily rate per day past the expected return
// date. Zero when returned on time or not yet returned.
func LateFee(b *model.Borrowing, dailyFee decimal.Decimal) int64 {
	if b.ActualReturnDate == nil || !b.ActualReturnDate.After(b.ExpectedReturnDate) {
		return 0
	}
	days := daysBetween(b.ExpectedReturnDate, *b.ActualReturnDate)
	return dailyFee.Mul(decimal.NewFromInt(LateFeeMultiplier)).Mul(decimal.NewFromInt(days)).Mul(hundred).IntPart()
}

// TotalOwed is the full bill at the moment of return. Callers invoke it only
// once the borrowing has an actual return date.
func TotalOwed(b *model.Borrowing, dailyFee decimal.Decimal) int64 {
	return RentalFee(b, dailyFee) + LateFee(b, dailyFee)
}

// IsLate reports whether the return happened past the expected date.
func IsLate(b *model.Borrowing) bool {
	return b.ActualReturnDate != nil && b.ActualReturnDate.After(b.ExpectedReturnDate)
}

func daysBetween(from, to time.Time) int64 {
	from = truncateToDate(from)
	to = truncateToDate(to)
	return int64(to.Sub(from) / (24 * time.Hour))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
