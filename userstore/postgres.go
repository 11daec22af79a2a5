package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/login"
)

// DefaultRole is assigned to users created on first sign-in.
const DefaultRole = "ROLE_USER"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                BIGSERIAL PRIMARY KEY,
	oauth_provider    VARCHAR(50)  NOT NULL,
	oauth_provider_id VARCHAR(255) NOT NULL,
	email             VARCHAR(255),
	name              VARCHAR(100),
	nickname          VARCHAR(100),
	profile_image_url VARCHAR(500),
	role              VARCHAR(50)  NOT NULL DEFAULT 'ROLE_USER',
	enabled           BOOLEAN      NOT NULL DEFAULT TRUE,
	last_login_at     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
	CONSTRAINT uk_oauth_provider_id UNIQUE (oauth_provider, oauth_provider_id)
);
CREATE TABLE IF NOT EXISTS login_history (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT REFERENCES users(id) ON DELETE CASCADE,
	oauth_provider VARCHAR(50),
	success        BOOLEAN NOT NULL,
	failure_reason VARCHAR(500),
	ip_address     VARCHAR(45),
	user_agent     VARCHAR(500),
	login_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_login_history_user_id ON login_history (user_id);
`

const upsertUser = `
INSERT INTO users (oauth_provider, oauth_provider_id, email, name, nickname, profile_image_url, role, enabled, last_login_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8, $8)
ON CONFLICT (oauth_provider, oauth_provider_id) DO UPDATE SET
	name = EXCLUDED.name,
	nickname = EXCLUDED.nickname,
	profile_image_url = EXCLUDED.profile_image_url,
	last_login_at = EXCLUDED.last_login_at,
	updated_at = EXCLUDED.updated_at
RETURNING id, COALESCE(email, ''), COALESCE(name, ''), COALESCE(nickname, ''), role, enabled`

// Column widths of login_history. Postgres VARCHAR widths count characters.
const (
	providerWidth      = 50
	failureReasonWidth = 500
	ipAddressWidth     = 45
	userAgentWidth     = 500
)

const insertHistory = `
INSERT INTO login_history (user_id, oauth_provider, success, failure_reason, ip_address, user_agent, login_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectOwner = `
SELECT COALESCE(email, ''), COALESCE(name, ''), role, oauth_provider, enabled
FROM users WHERE id = $1`

// Postgres is a PostgreSQL-backed user store.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres opens a lib/pq connection pool for dsn and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("userstore: parse dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("userstore: ping: %w", err)
	}
	return db, nil
}

// NewPostgres returns a store on db. Call EnsureSchema once before use if the
// tables may not exist.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// EnsureSchema creates the users and login_history tables if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("userstore: create schema: %w", err)
	}
	return nil
}

// FindOrCreateUser inserts a user for a first sign-in or refreshes the
// display fields of an existing one. Email and role are never overwritten.
func (p *Postgres) FindOrCreateUser(ctx context.Context, profile login.Profile) (login.User, error) {
	var (
		id   int64
		user = login.User{Provider: profile.Provider}
	)
	err := p.db.QueryRowContext(ctx, upsertUser,
		profile.Provider,
		profile.ProviderSubjectID,
		nullString(profile.Email),
		nullString(profile.DisplayName),
		nullString(profile.Nickname),
		nullString(profile.AvatarURL),
		DefaultRole,
		p.now().UTC(),
	).Scan(&id, &user.Email, &user.Name, &user.Nickname, &user.Role, &user.Enabled)
	if err != nil {
		return login.User{}, fmt.Errorf("userstore: upsert user: %w", classify(err))
	}
	user.ID = strconv.FormatInt(id, 10)
	return user, nil
}

func (p *Postgres) RecordLogin(ctx context.Context, record login.Record) error {
	userID, err := strconv.ParseInt(record.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("userstore: invalid user id %q", record.UserID)
	}
	at := record.At
	if at.IsZero() {
		at = p.now().UTC()
	}

	_, err = p.db.ExecContext(ctx, insertHistory,
		userID,
		clip(record.Provider, providerWidth),
		record.Success,
		nullString(clip(record.FailureReason, failureReasonWidth)),
		nullString(clip(record.IP, ipAddressWidth)),
		nullString(clip(record.UserAgent, userAgentWidth)),
		at,
	)
	if err != nil {
		return fmt.Errorf("userstore: insert login history: %w", classify(err))
	}
	return nil
}

// LookupOwner returns the current attributes of subjectID. Missing and
// disabled users both report credgate.ErrOwnerNotFound.
func (p *Postgres) LookupOwner(ctx context.Context, subjectID string) (credgate.Attributes, error) {
	id, err := strconv.ParseInt(subjectID, 10, 64)
	if err != nil {
		return credgate.Attributes{}, credgate.ErrOwnerNotFound
	}

	var (
		attrs   credgate.Attributes
		enabled bool
	)
	err = p.db.QueryRowContext(ctx, selectOwner, id).
		Scan(&attrs.Email, &attrs.Name, &attrs.Role, &attrs.Provider, &enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credgate.Attributes{}, credgate.ErrOwnerNotFound
		}
		return credgate.Attributes{}, fmt.Errorf("userstore: lookup owner: %w", classify(err))
	}
	if !enabled {
		return credgate.Attributes{}, credgate.ErrOwnerNotFound
	}
	return attrs, nil
}

// ErrConstraint is returned when the database rejected a write for a
// constraint violation.
var ErrConstraint = errors.New("userstore: constraint violation")

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %s", ErrConstraint, pqErr.Message)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// clip shortens s to at most n characters, keeping whole runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
