package notification

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"go-realtime-chat/internal/common"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewRepository(conn), mock
}

var notificationColumns = []string{"id", "sender_id", "receiver_id", "message", "read", "delivered", "created_at"}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications (id, sender_id, receiver_id, message)`)).
		WithArgs("n1", "u1", "u2", "hi").
		WillReturnRows(sqlmock.NewRows([]string{"read", "delivered", "created_at"}).AddRow(false, false, now))

	n, err := repo.Create(context.Background(), &Notification{ID: "n1", SenderID: "u1", ReceiverID: "u2", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, now, n.CreatedAt)
	assert.False(t, n.Delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	q := regexp.QuoteMeta(`FROM notifications WHERE id = $1 AND receiver_id = $2`)

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("n1", "u2").
			WillReturnRows(sqlmock.NewRows(notificationColumns).AddRow("n1", "u1", "u2", "hi", true, false, time.Now()))

		n, err := repo.Get(context.Background(), "n1", "u2")
		require.NoError(t, err)
		assert.True(t, n.Read)
	})

	t.Run("other receiver", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("n1", "u3").WillReturnRows(sqlmock.NewRows(notificationColumns))

		_, err := repo.Get(context.Background(), "n1", "u3")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $2`)).WithArgs("u2", 50).
		WillReturnRows(sqlmock.NewRows(notificationColumns).
			AddRow("n2", "u1", "u2", "second", false, false, now).
			AddRow("n1", "u1", "u2", "first", true, true, now.Add(-time.Minute)))

	list, err := repo.List(context.Background(), "u2", 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFlags(t *testing.T) {
	t.Run("read", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = TRUE WHERE id = $1 AND receiver_id = $2`)).
			WithArgs("n1", "u2").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.MarkRead(context.Background(), "n1", "u2"))
	})

	t.Run("delivered, not owner", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET delivered = TRUE`)).
			WithArgs("n1", "u3").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.MarkDelivered(context.Background(), "n1", "u3"), common.ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = TRUE`)).WillReturnError(errors.New("down"))
		err := repo.MarkRead(context.Background(), "n1", "u2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: down")
	})
}

func TestMarkAllReadAndUnreadCount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = TRUE WHERE receiver_id = $1 AND read = FALSE`)).
		WithArgs("u2").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications`)).WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := repo.MarkAllRead(context.Background(), "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	count, err := repo.UnreadCount(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	q := regexp.QuoteMeta(`DELETE FROM notifications WHERE id = $1 AND receiver_id = $2`)

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).WithArgs("n1", "u2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("n1", "u2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "n1", "u2"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "n1", "u2"), common.ErrNotFound)
}

func TestSubscriptions(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (endpoint) DO UPDATE`)).
		WithArgs("s1", "u2", "https://push.example/a", "key", "auth").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("s0", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM push_subscriptions WHERE user_id = $1`)).WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "endpoint", "p256dh", "auth", "created_at"}).
			AddRow("s0", "u2", "https://push.example/a", "key", "auth", now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM push_subscriptions WHERE endpoint = $1`)).
		WithArgs("https://push.example/a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`)).
		WithArgs("u2", "https://push.example/a").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	sub, err := repo.UpsertSubscription(ctx, &PushSubscription{
		ID: "s1", UserID: "u2", Endpoint: "https://push.example/a", Keys: PushKeys{P256dh: "key", Auth: "auth"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s0", sub.ID, "an existing endpoint keeps its id")

	subs, err := repo.ListSubscriptions(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "key", subs[0].Keys.P256dh)

	require.NoError(t, repo.DeleteSubscriptionByEndpoint(ctx, "https://push.example/a"))
	assert.ErrorIs(t, repo.DeleteSubscription(ctx, "u2", "https://push.example/a"), common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
