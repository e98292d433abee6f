package overdue_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	borrowrepo "github.com/callogan/library-service-api/repository/borrowing"
	"github.com/callogan/library-service-api/service/overdue"
)

type repoMock struct {
	rows     []borrowrepo.DueRow
	deadline time.Time
}

func (m *repoMock) ListDueBy(ctx context.Context, deadline time.Time) ([]borrowrepo.DueRow, error) {
	m.deadline = deadline
	return m.rows, nil
}

type notifierMock struct{ messages []string }

func (m *notifierMock) Notify(ctx context.Context, message string) error {
	m.messages = append(m.messages, message)
	return nil
}

func TestScanAndNotify_NothingOverdue(t *testing.T) {
	r := &repoMock{}
	n := &notifierMock{}
	svc := overdue.New(r, n, slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	count, err := svc.ScanAndNotify(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, count)

	// Exactly one liveness message, no reminders.
	require.Equal(t, []string{overdue.NothingOverdueMessage}, n.messages)

	// Due tomorrow counts as due.
	require.Equal(t, now.Add(24*time.Hour), r.deadline)
}

func TestScanAndNotify_RemindsEachBorrowing(t *testing.T) {
	r := &repoMock{rows: []borrowrepo.DueRow{
		{BorrowingID: 1, BookTitle: "Kobzar", UserID: 7, ExpectedReturnDate: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{BorrowingID: 2, BookTitle: "Zakhar Berkut", UserID: 8, ExpectedReturnDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
	}}
	n := &notifierMock{}
	svc := overdue.New(r, n, slog.New(slog.NewTextHandler(io.Discard, nil)))

	count, err := svc.ScanAndNotify(context.Background(), time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.Len(t, n.messages, 2)
	require.Contains(t, n.messages[0], "Kobzar")
	require.Contains(t, n.messages[0], "2024-03-11")
	require.Contains(t, n.messages[1], "Zakhar Berkut")
	require.NotContains(t, n.messages, overdue.NothingOverdueMessage)
}
