package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellarhub/server/internal/models"
	"cellarhub/server/internal/queue"
	"cellarhub/server/internal/security"
)

const shareKey = "share:7|203.0.113.9"

var shareInput = CreateShareInput{
	UserID:    7,
	ClientIP:  "203.0.113.9",
	WineID:    42,
	Title:     "Barolo 2016",
	Indexable: true,
}

type fakePreviews struct {
	url string
	ok  bool
}

func (f fakePreviews) PreviewURL(context.Context, string) (string, bool, error) {
	return f.url, f.ok, nil
}

func newShareService(mock pgxmock.PgxPoolIface, tasks TaskEnqueuer, previews PreviewStore) *ShareService {
	limiter := NewRateLimiter(mock, zerolog.Nop()).WithClock(clock)
	return NewShareService(mock, limiter, tasks, previews, testConfig(), zerolog.Nop()).WithClock(clock)
}

func expectWine(mock pgxmock.PgxPoolIface, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

// expectAdmission queues the rate limiter statements for a window that
// already holds prior admissions.
func expectAdmission(mock pgxmock.PgxPoolIface, prior int) {
	start := WindowStart(now, time.Hour)
	if prior == 0 {
		mock.ExpectQuery("FROM rate_limiter").WithArgs(shareKey, start).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("INSERT INTO rate_limiter").WithArgs(shareKey, start).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
		return
	}
	mock.ExpectQuery("FROM rate_limiter").WithArgs(shareKey, start).
		WillReturnRows(pgxmock.NewRows(rateLimitCols).AddRow(int64(3), prior))
	if prior < 5 {
		mock.ExpectQuery("UPDATE rate_limiter").WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(prior + 1))
	}
}

func expectShareInsert(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("INSERT INTO public_shares").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec("UPDATE public_shares SET og_image_url").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestCreateShare(t *testing.T) {
	mock := newMock(t)
	tasks := &fakeQueue{}
	svc := newShareService(mock, tasks, nil)

	expectWine(mock, true)
	mock.ExpectBegin()
	expectAdmission(mock, 0)
	expectShareInsert(mock)
	mock.ExpectCommit()

	res, err := svc.CreateShare(context.Background(), shareInput)
	require.NoError(t, err)

	assert.True(t, security.ValidShareToken(res.Token))
	assert.Len(t, res.Token, 32)
	assert.Equal(t, "https://cellar.example/share_wine.php?t="+res.Token, res.ShareURL)
	assert.Equal(t, "https://cellar.example/features_og.php?t="+res.Token, res.PreviewURL)

	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, queue.Task{Type: queue.TaskSharePreview, Token: res.Token}, tasks.tasks[0])
}

func TestCreateShareSixthCallIsRateLimited(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, &fakeQueue{}, nil)
	ctx := context.Background()

	tokens := map[string]bool{}
	for prior := 0; prior < 5; prior++ {
		expectWine(mock, true)
		mock.ExpectBegin()
		expectAdmission(mock, prior)
		expectShareInsert(mock)
		mock.ExpectCommit()

		res, err := svc.CreateShare(ctx, shareInput)
		require.NoError(t, err, "call %d", prior+1)
		tokens[res.Token] = true
	}
	assert.Len(t, tokens, 5)

	expectWine(mock, true)
	mock.ExpectBegin()
	expectAdmission(mock, 5)
	mock.ExpectRollback()

	_, err := svc.CreateShare(ctx, shareInput)
	require.ErrorIs(t, err, ErrRateLimited)

	var limited *RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 30*60, limited.RetryAfterSeconds())
}

func TestCreateShareInsertFailureReleasesSlot(t *testing.T) {
	mock := newMock(t)
	tasks := &fakeQueue{}
	svc := newShareService(mock, tasks, nil)

	expectWine(mock, true)
	mock.ExpectBegin()
	expectAdmission(mock, 2)
	mock.ExpectQuery("INSERT INTO public_shares").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.CreateShare(context.Background(), shareInput)
	require.ErrorIs(t, err, ErrStorage)
	assert.NotContains(t, err.Error(), "rate_limited")
	assert.Empty(t, tasks.tasks)
}

func TestCreateShareRetriesOnceOnDeadlock(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, &fakeQueue{}, nil)

	expectWine(mock, true)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rate_limiter").WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	expectAdmission(mock, 0)
	expectShareInsert(mock)
	mock.ExpectCommit()

	_, err := svc.CreateShare(context.Background(), shareInput)
	require.NoError(t, err)
}

func TestCreateShareGivesUpAfterSecondDeadlock(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, &fakeQueue{}, nil)

	expectWine(mock, true)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM rate_limiter").WillReturnError(&pgconn.PgError{Code: "55P03"})
		mock.ExpectRollback()
	}

	_, err := svc.CreateShare(context.Background(), shareInput)
	require.ErrorIs(t, err, ErrStorage)
}

func TestCreateShareValidation(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, &fakeQueue{}, nil)
	ctx := context.Background()

	in := shareInput
	in.UserID = 0
	_, err := svc.CreateShare(ctx, in)
	require.ErrorIs(t, err, ErrAuthRequired)

	in = shareInput
	in.WineID = -1
	_, err = svc.CreateShare(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	in = shareInput
	in.Title = strings.Repeat("x", maxTitleLength+1)
	_, err = svc.CreateShare(ctx, in)
	require.ErrorIs(t, err, ErrInvalidInput)

	expectWine(mock, false)
	_, err = svc.CreateShare(ctx, shareInput)
	require.ErrorIs(t, err, ErrInvalidItem)
}

var shareCols = []string{"id", "token", "wine_id", "user_id", "title", "excerpt", "is_indexable", "expires_at", "og_image_url", "status", "created_at"}

const validToken = "AbCdEfGhIjKlMnOpQrStUvWxYz012345"

func shareRow(expires *time.Time, status models.ShareStatus) *pgxmock.Rows {
	title := "Barolo"
	return pgxmock.NewRows(shareCols).
		AddRow(int64(1), validToken, int64(42), int64(7), &title, (*string)(nil), true, expires, (*string)(nil), status, now)
}

func TestLookup(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, nil, nil)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "bad token")
	require.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("FROM public_shares").WithArgs(validToken).WillReturnRows(shareRow(nil, models.ShareStatusActive))
	share, err := svc.Lookup(ctx, validToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), share.WineID)

	past := now.Add(-time.Minute)
	mock.ExpectQuery("FROM public_shares").WithArgs(validToken).WillReturnRows(shareRow(&past, models.ShareStatusActive))
	_, err = svc.Lookup(ctx, validToken)
	require.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("FROM public_shares").WithArgs(validToken).WillReturnRows(shareRow(nil, models.ShareStatusRevoked))
	_, err = svc.Lookup(ctx, validToken)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPreviewLocation(t *testing.T) {
	mock := newMock(t)
	tasks := &fakeQueue{}
	ctx := context.Background()

	rendered := newShareService(mock, tasks, fakePreviews{url: "https://objects.example/p.png", ok: true})
	mock.ExpectQuery("FROM public_shares").WithArgs(validToken).WillReturnRows(shareRow(nil, models.ShareStatusActive))
	location, err := rendered.PreviewLocation(ctx, validToken)
	require.NoError(t, err)
	assert.Equal(t, "https://objects.example/p.png", location)
	assert.Empty(t, tasks.tasks)

	pending := newShareService(mock, tasks, fakePreviews{})
	mock.ExpectQuery("FROM public_shares").WithArgs(validToken).WillReturnRows(shareRow(nil, models.ShareStatusActive))
	location, err = pending.PreviewLocation(ctx, validToken)
	require.NoError(t, err)
	assert.Equal(t, "/static/og-default.png", location)
	require.Len(t, tasks.tasks, 1)
}

func TestUpdateSettings(t *testing.T) {
	mock := newMock(t)
	svc := newShareService(mock, nil, nil)
	expires := now.Add(48 * time.Hour)

	mock.ExpectExec("UPDATE public_shares SET is_indexable").WithArgs(validToken, false, &expires).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, svc.UpdateSettings(context.Background(), validToken, false, &expires))

	mock.ExpectExec("UPDATE public_shares SET is_indexable").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, svc.UpdateSettings(context.Background(), validToken, true, nil), ErrNotFound)
}
