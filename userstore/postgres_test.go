package userstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/login"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewPostgres(db)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	return store, mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateUser(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "email", "name", "nickname", "role", "enabled"}).
		AddRow(int64(42), "kim@example.com", "Kim", "kimmy", "ROLE_USER", true)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("naver", "nv-1", "kim@example.com", "Kim", "kimmy", sql.NullString{}, DefaultRole, store.now().UTC()).
		WillReturnRows(rows)

	user, err := store.FindOrCreateUser(context.Background(), login.Profile{
		Provider:          "naver",
		ProviderSubjectID: "nv-1",
		Email:             "kim@example.com",
		DisplayName:       "Kim",
		Nickname:          "kimmy",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "naver", user.Provider)
	assert.Equal(t, "ROLE_USER", user.Role)
	assert.True(t, user.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateUserConstraint(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23502", Message: "null value in column"})

	_, err := store.FindOrCreateUser(context.Background(), login.Profile{Provider: "naver", ProviderSubjectID: "x"})
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestRecordLogin(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO login_history")).
		WithArgs(int64(42), "naver", false, sql.NullString{String: "account disabled", Valid: true},
			sql.NullString{String: "203.0.113.5", Valid: true}, sql.NullString{}, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordLogin(context.Background(), login.Record{
		UserID:        "42",
		Provider:      "naver",
		FailureReason: "account disabled",
		IP:            "203.0.113.5",
		At:            at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginClipsOversizedClientInput(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	agent := strings.Repeat("가", userAgentWidth+100)
	ip := strings.Repeat("1", 200)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO login_history")).
		WithArgs(int64(42), "naver", true, sql.NullString{},
			sql.NullString{String: ip[:ipAddressWidth], Valid: true},
			sql.NullString{String: strings.Repeat("가", userAgentWidth), Valid: true}, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordLogin(context.Background(), login.Record{
		UserID:    "42",
		Provider:  "naver",
		Success:   true,
		IP:        ip,
		UserAgent: agent,
		At:        at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab", clip("abc", 2))
	assert.Equal(t, "가나", clip("가나다", 2))
	assert.Equal(t, "", clip("abc", 0))
}

func TestRecordLoginInvalidUser(t *testing.T) {
	store, _ := newMockStore(t)

	err := store.RecordLogin(context.Background(), login.Record{UserID: "abc"})
	assert.Error(t, err)
}

func TestLookupOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"email", "name", "role", "oauth_provider", "enabled"}).
			AddRow("kim@example.com", "Kim", "ROLE_ADMIN", "naver", true))

	attrs, err := store.LookupOwner(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, credgate.Attributes{Role: "ROLE_ADMIN", Email: "kim@example.com", Name: "Kim", Provider: "naver"}, attrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOwnerNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	_, err := store.LookupOwner(context.Background(), "7")
	assert.ErrorIs(t, err, credgate.ErrOwnerNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"email", "name", "role", "oauth_provider", "enabled"}).
			AddRow("", "", "ROLE_USER", "naver", false))
	_, err = store.LookupOwner(context.Background(), "8")
	assert.ErrorIs(t, err, credgate.ErrOwnerNotFound, "disabled users are treated as gone")

	_, err = store.LookupOwner(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, credgate.ErrOwnerNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOwnerBackendError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WillReturnError(errors.New("connection refused"))

	_, err := store.LookupOwner(context.Background(), "42")
	require.Error(t, err)
	assert.NotErrorIs(t, err, credgate.ErrOwnerNotFound)
}
