package usage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/storage"
)

const defaultQueryLimit = 100

// SQLiteStore implements Store on the request_logs table.
type SQLiteStore struct {
	db         *sql.DB
	insertStmt *sql.Stmt
}

// NewSQLiteStore creates a store on an open state database.
func NewSQLiteStore(db *storage.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db.SQL()}

	var err error
	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO request_logs (
			id, request_id, timestamp, app, provider_id, model, method, path,
			status_code, latency_ms, success, attempt, streamed, error_kind,
			input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, storage.NewStorageError("prepare", fmt.Errorf("insert statement: %w", err))
	}
	return s, nil
}

// Append persists one entry.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	var in, out, cacheRead, cacheCreate sql.NullInt64
	if e.Tokens != nil {
		in = sql.NullInt64{Int64: e.Tokens.InputTokens, Valid: true}
		out = sql.NullInt64{Int64: e.Tokens.OutputTokens, Valid: true}
		cacheRead = sql.NullInt64{Int64: e.Tokens.CacheReadTokens, Valid: true}
		cacheCreate = sql.NullInt64{Int64: e.Tokens.CacheCreationTokens, Valid: true}
	}

	_, err := s.insertStmt.ExecContext(ctx,
		e.ID, e.RequestID, e.Timestamp.UnixMilli(), e.App.String(), e.ProviderID,
		e.Model, e.Method, e.Path,
		e.StatusCode, e.LatencyMS, e.Success, e.Attempt, e.Streamed, e.ErrorKind,
		in, out, cacheRead, cacheCreate,
	)
	if err != nil {
		return storage.NewStorageError("insert", err)
	}
	return nil
}

// Query returns entries matching q, newest first.
func (s *SQLiteStore) Query(ctx context.Context, q *Query) ([]*Entry, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhereClause(q)

	sqlQuery := `SELECT id, request_id, timestamp, app, provider_id, model, method, path,
		status_code, latency_ms, success, attempt, streamed, error_kind,
		input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens
		FROM request_logs`
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += " ORDER BY timestamp DESC, rowid DESC"

	limit := defaultQueryLimit
	if q.Limit > 0 {
		limit = q.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, storage.NewStorageError("query", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storage.NewStorageError("scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("query", err)
	}
	return entries, nil
}

// Count returns the number of entries matching q.
func (s *SQLiteStore) Count(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhereClause(q)
	sqlQuery := "SELECT COUNT(*) FROM request_logs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&n); err != nil {
		return 0, storage.NewStorageError("count", err)
	}
	return n, nil
}

// Stats aggregates entries matching q per app and provider.
func (s *SQLiteStore) Stats(ctx context.Context, q *Query) ([]ProviderStats, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhereClause(q)

	sqlQuery := `SELECT app, provider_id, COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(latency_ms), 0),
		COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), MAX(timestamp)
		FROM request_logs`
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += " GROUP BY app, provider_id ORDER BY app, provider_id"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, storage.NewStorageError("stats", err)
	}
	defer rows.Close()

	out := []ProviderStats{}
	for rows.Next() {
		var st ProviderStats
		var last int64
		if err := rows.Scan(&st.App, &st.ProviderID, &st.Requests, &st.Successes, &st.AvgLatencyMS,
			&st.InputTokens, &st.OutputTokens, &last); err != nil {
			return nil, storage.NewStorageError("scan", err)
		}
		st.Failures = st.Requests - st.Successes
		if st.Requests > 0 {
			st.SuccessRate = float64(st.Successes) / float64(st.Requests)
		}
		st.LastRequestAt = time.UnixMilli(last).UTC()
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("stats", err)
	}
	return out, nil
}

// DeleteBefore removes entries older than cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_logs WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, storage.NewStorageError("delete", err)
	}
	return res.RowsAffected()
}

// DeleteOldest removes the oldest entries so that at most keep remain.
func (s *SQLiteStore) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM request_logs WHERE rowid NOT IN (
			SELECT rowid FROM request_logs ORDER BY timestamp DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, storage.NewStorageError("delete", err)
	}
	return res.RowsAffected()
}

// Close releases prepared statements. The database itself is owned by the caller.
func (s *SQLiteStore) Close() error {
	return s.insertStmt.Close()
}

func buildWhereClause(q *Query) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.App != "" {
		conds = append(conds, "app = ?")
		args = append(args, q.App)
	}
	if q.ProviderID != "" {
		conds = append(conds, "provider_id = ?")
		args = append(args, q.ProviderID)
	}
	if q.Since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.Until != nil {
		conds = append(conds, "timestamp < ?")
		args = append(args, q.Until.UnixMilli())
	}
	if q.Success != nil {
		conds = append(conds, "success = ?")
		args = append(args, *q.Success)
	}

	return strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                                    Entry
		requestID, model, method, path, kind sql.NullString
		app                                  string
		ts                                   int64
		in, out, cacheRead, cacheCreate      sql.NullInt64
	)
	if err := row.Scan(&e.ID, &requestID, &ts, &app, &e.ProviderID, &model, &method, &path,
		&e.StatusCode, &e.LatencyMS, &e.Success, &e.Attempt, &e.Streamed, &kind,
		&in, &out, &cacheRead, &cacheCreate); err != nil {
		return nil, err
	}

	parsed, err := providers.ParseApp(app)
	if err != nil {
		return nil, err
	}
	e.App = parsed
	e.Timestamp = time.UnixMilli(ts).UTC()
	e.RequestID = requestID.String
	e.Model = model.String
	e.Method = method.String
	e.Path = path.String
	e.ErrorKind = kind.String
	if in.Valid || out.Valid {
		e.Tokens = &TokenUsage{
			InputTokens:         in.Int64,
			OutputTokens:        out.Int64,
			CacheReadTokens:     cacheRead.Int64,
			CacheCreationTokens: cacheCreate.Int64,
		}
	}
	return &e, nil
}
