package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMissingUserID is returned when a remote operation is attempted without a user.
var ErrMissingUserID = errors.New("remote documents require a user id")

// UserScope wraps a connection with user context and ensures cleanup.
// The connection has app.current_user_id set for RLS policy evaluation.
type UserScope struct {
	Conn *pgxpool.Conn
}

// Close resets user context and releases connection to pool.
// This MUST be called to prevent user context from leaking to the next caller.
func (s *UserScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_user_id")
	s.Conn.Release()
}

// WithUser acquires a connection and sets the user context for RLS.
// The returned UserScope MUST be closed with defer scope.Close().
func (db *DB) WithUser(ctx context.Context, userID string) (*UserScope, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_user_id', $1, false)", userID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &UserScope{Conn: conn}, nil
}
