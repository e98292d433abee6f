package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	borrowrepo "github.com/callogan/library-service-api/repository/borrowing"
	notifyrepo "github.com/callogan/library-service-api/repository/notify"
)

// NothingOverdueMessage doubles as a liveness signal: it proves the scan ran
// even when there was nothing to report.
const NothingOverdueMessage = "There are no overdue borrowings today."

type Repo interface {
	ListDueBy(ctx context.Context, deadline time.Time) ([]borrowrepo.DueRow, error)
}

// Notifier reminds borrowers about books due tomorrow or already overdue.
type Notifier struct {
	r        Repo
	notifier notifyrepo.Notifier
	log      *slog.Logger
}

func New(r Repo, n notifyrepo.Notifier, log *slog.Logger) *Notifier {
	return &Notifier{r: r, notifier: n, log: log}
}

// ScanAndNotify emits one reminder per qualifying borrowing, or a single
// "nothing overdue" message when none qualify. Read-only against the ledger.
func (n *Notifier) ScanAndNotify(ctx context.Context, now time.Time) (int, error) {
	deadline := now.Add(24 * time.Hour)
	rows, err := n.r.ListDueBy(ctx, deadline)
	if err != nil {
		return 0, err
	}

	if len(rows) == 0 {
		n.send(ctx, NothingOverdueMessage)
		return 0, nil
	}

	for _, row := range rows {
		n.log.Info("creating overdue reminder", "borrowing_id", row.BorrowingID)
		msg := fmt.Sprintf(
			"The expiration date of your borrowing is %s.\nPlease return the book '%s' by that time.",
			row.ExpectedReturnDate.Format("2006-01-02"), row.BookTitle,
		)
		n.send(ctx, msg)
	}
	return len(rows), nil
}

func (n *Notifier) send(ctx context.Context, msg string) {
	if err := n.notifier.Notify(ctx, msg); err != nil {
		n.log.Error("notification failed", "err", err)
	}
}
