// opaque authentication backend: verify(user, password, isLogin) -> bool,
// backed by the table user(username TEXT, passwd TEXT) against the shared
// sqlpool.Pool
package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kfcemployee/tinyreactor/internal/sqlpool"
)

// Verifier is the opaque collaborator the connection state machine calls
// for the two auth routes; the HTTP layer never sees SQL.
type Verifier interface {
	Verify(ctx context.Context, user, password string, isLogin bool) bool
}

// SQLVerifier implements Verifier against sqlpool.Pool. Login is a
// credential-matching SELECT; registration is an existence check followed
// by an INSERT.
type SQLVerifier struct {
	pool *sqlpool.Pool
}

// New wraps an already-open pool.
func New(pool *sqlpool.Pool) *SQLVerifier {
	return &SQLVerifier{pool: pool}
}

// Verify reports success: for login, whether (user, password) matches a
// row; for registration, whether the insert succeeded (user did not
// already exist).
func (v *SQLVerifier) Verify(ctx context.Context, user, password string, isLogin bool) bool {
	var ok bool
	err := v.pool.Scoped(ctx, func(db *sql.DB) error {
		if isLogin {
			ok = login(ctx, db, user, password)
		} else {
			ok = register(ctx, db, user, password)
		}
		return nil
	})
	return err == nil && ok
}

func login(ctx context.Context, db *sql.DB, user, password string) bool {
	row := db.QueryRowContext(ctx,
		`SELECT username, passwd FROM user WHERE username = ? AND passwd = ?`,
		user, password)

	var gotUser, gotPass string
	if err := row.Scan(&gotUser, &gotPass); err != nil {
		return false
	}
	return true
}

func register(ctx context.Context, db *sql.DB, user, password string) bool {
	var exists string
	err := db.QueryRowContext(ctx, `SELECT username FROM user WHERE username = ?`, user).Scan(&exists)
	if err == nil {
		return false // already registered
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false
	}

	_, err = db.ExecContext(ctx, `INSERT INTO user(username, passwd) VALUES (?, ?)`, user, password)
	return err == nil
}

// EnsureSchema creates the user table if it does not exist yet; callers run
// this once against each freshly opened pool at startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS user (
		username TEXT PRIMARY KEY,
		passwd   TEXT NOT NULL
	)`)
	return err
}
