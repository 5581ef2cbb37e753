package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/database"
)

// PostgresStore keeps documents in the sync_documents table. Every statement
// runs on a connection scoped to the user so row-level security applies.
type PostgresStore struct {
	remote *database.Remote
	logger *zap.Logger
}

// NewPostgresStore creates a DocumentStore backed by PostgreSQL. The pool is
// opened through remote on first use.
func NewPostgresStore(remote *database.Remote, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		remote: remote,
		logger: logger.Named("pg-store"),
	}
}

var _ DocumentStore = (*PostgresStore)(nil)

const upsertDocumentSQL = `
	INSERT INTO sync_documents (user_id, collection, doc_id, data, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (user_id, collection, doc_id)
	DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

const deleteDocumentSQL = `
	DELETE FROM sync_documents
	WHERE user_id = $1 AND collection = $2 AND doc_id = $3`

func (s *PostgresStore) Commit(ctx context.Context, userID string, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	scope, err := s.scope(ctx, "commit", userID)
	if err != nil {
		return err
	}
	defer scope.Close()

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return translateError("commit", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, w := range writes {
		if w.Delete {
			batch.Queue(deleteDocumentSQL, userID, w.Collection, w.DocID)
		} else {
			batch.Queue(upsertDocumentSQL, userID, w.Collection, w.DocID, w.Data)
		}
	}

	results := tx.SendBatch(ctx, batch)
	for range writes {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return translateError("commit", err)
		}
	}
	if err := results.Close(); err != nil {
		return translateError("commit", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateError("commit", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, collection, docID string) (*Document, error) {
	scope, err := s.scope(ctx, "get", userID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	doc := Document{ID: docID}
	err = scope.Conn.QueryRow(ctx, `
		SELECT data, updated_at FROM sync_documents
		WHERE user_id = $1 AND collection = $2 AND doc_id = $3`,
		userID, collection, docID,
	).Scan(&doc.Data, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewStoreError("get", CodeNotFound, fmt.Errorf("document %s/%s not found", collection, docID))
		}
		return nil, translateError("get", err)
	}
	return &doc, nil
}

func (s *PostgresStore) Query(ctx context.Context, userID, collection string, filter Filter) ([]Document, error) {
	scope, err := s.scope(ctx, "query", userID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	query := `SELECT doc_id, data, updated_at FROM sync_documents WHERE user_id = $1 AND collection = $2`
	args := []any{userID, collection}
	if len(filter.Equals) > 0 {
		args = append(args, filter.Equals)
		query += fmt.Sprintf(" AND data @> $%d::jsonb", len(args))
	}
	query += " ORDER BY doc_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError("query", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			doc       Document
			updatedAt time.Time
		)
		if err := rows.Scan(&doc.ID, &doc.Data, &updatedAt); err != nil {
			return nil, translateError("query", err)
		}
		doc.UpdatedAt = updatedAt
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("query", err)
	}
	return docs, nil
}

func (s *PostgresStore) DeleteByPrefix(ctx context.Context, userID, collection, docIDPrefix string) (int64, error) {
	return s.exec(ctx, "delete-prefix", userID, `
		DELETE FROM sync_documents
		WHERE user_id = $1 AND collection = $2 AND left(doc_id, length($3)) = $3`,
		userID, collection, docIDPrefix)
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, userID, collection string) (int64, error) {
	return s.exec(ctx, "delete-collection", userID, `
		DELETE FROM sync_documents WHERE user_id = $1 AND collection = $2`,
		userID, collection)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) (int64, error) {
	return s.exec(ctx, "delete-user", userID, `DELETE FROM sync_documents WHERE user_id = $1`, userID)
}

// Ping opens the pool when it is not open yet and checks it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	db, err := s.pool(ctx, "ping")
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		return translateError("ping", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, op, userID, sql string, args ...any) (int64, error) {
	scope, err := s.scope(ctx, op, userID)
	if err != nil {
		return 0, err
	}
	defer scope.Close()

	tag, err := scope.Conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, translateError(op, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) scope(ctx context.Context, op, userID string) (*database.UserScope, error) {
	if userID == "" {
		return nil, NewStoreError(op, CodeInvalidArgument, database.ErrMissingUserID)
	}
	db, err := s.pool(ctx, op)
	if err != nil {
		return nil, err
	}
	scope, err := db.WithUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrMissingUserID) {
			return nil, NewStoreError(op, CodeInvalidArgument, err)
		}
		return nil, translateError(op, err)
	}
	return scope, nil
}

func (s *PostgresStore) pool(ctx context.Context, op string) (*database.DB, error) {
	db, err := s.remote.Get(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewStoreError(op, CodeDeadlineExceeded, err)
		}
		return nil, NewStoreError(op, CodeUnavailable, err)
	}
	return db, nil
}

// translateError tags a pgx failure with the Code the sync adapter retries on.
func translateError(op string, err error) error {
	return NewStoreError(op, pgErrorCode(err), err)
}

func pgErrorCode(err error) Code {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return CodeResourceExhausted
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch code := pgErr.Code; {
		case strings.HasPrefix(code, "53"):
			return CodeResourceExhausted
		case code == "42501":
			return CodePermissionDenied
		case code == "28000" || code == "28P01":
			return CodeUnauthenticated
		case code == "42P01":
			return CodeNotFound
		case strings.HasPrefix(code, "22") || code == "23502" || code == "23514":
			return CodeInvalidArgument
		case code == "23505":
			return CodeAlreadyExists
		case code == "40001" || code == "40P01" || strings.HasPrefix(code, "57P") || strings.HasPrefix(code, "08"):
			return CodeUnavailable
		default:
			return CodeUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return CodeDeadlineExceeded
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return CodeUnavailable
	}
	return CodeOf(err)
}
