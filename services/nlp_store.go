package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
)

type NlpLogStore struct {
	db *sql.DB
}

func NewNlpLogStore(db *sql.DB) *NlpLogStore {
	return &NlpLogStore{db: db}
}

const nlpLogColumns = `id, user_id, transaction_id, input_text, parsed_json, is_success,
	corrections, engine, confidence::float8, created_at`

func scanNlpLog(row interface{ Scan(...interface{}) error }) (models.NlpLog, error) {
	var (
		l                   models.NlpLog
		parsed, corrections []byte
	)
	err := row.Scan(&l.ID, &l.UserID, &l.TransactionID, &l.InputText, &parsed, &l.IsSuccess,
		&corrections, &l.Engine, &l.Confidence, &l.CreatedAt)
	if parsed != nil {
		l.ParsedJSON = json.RawMessage(parsed)
	}
	if corrections != nil {
		l.Corrections = json.RawMessage(corrections)
	}
	return l, err
}

func (s *NlpLogStore) Create(ctx context.Context, l models.NlpLog) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO nlp_logs (user_id, input_text, parsed_json, is_success, engine, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		l.UserID, l.InputText, string(l.ParsedJSON), l.IsSuccess, l.Engine, l.Confidence,
	).Scan(&id)
	return id, err
}

// Link attaches the created transaction and any corrections to a log.
func (s *NlpLogStore) Link(ctx context.Context, userID, logID, transactionID string, corrections json.RawMessage) error {
	var c interface{}
	if len(corrections) > 0 {
		c = string(corrections)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE nlp_logs SET transaction_id = $3, corrections = COALESCE($4::jsonb, corrections)
		WHERE id = $1 AND user_id = $2`, logID, userID, transactionID, c)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetCorrections merges corrections into the log's existing ones.
func (s *NlpLogStore) SetCorrections(ctx context.Context, userID, logID string, corrections json.RawMessage) (models.NlpLog, error) {
	return scanNlpLog(s.db.QueryRowContext(ctx, `
		UPDATE nlp_logs SET corrections = COALESCE(corrections, '{}'::jsonb) || $3::jsonb
		WHERE id = $1 AND user_id = $2
		RETURNING `+nlpLogColumns, logID, userID, string(corrections)))
}

// List returns logs newest first. An empty userID lists every user's logs.
func (s *NlpLogStore) List(ctx context.Context, userID string, q models.NlpLogQuery) ([]models.NlpLog, int, error) {
	offset := q.Normalize()
	var success interface{}
	if q.Success != nil {
		success = *q.Success
	}

	const filter = `($1::text = '' OR user_id::text = $1::text) AND ($2::boolean IS NULL OR is_success = $2)`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nlp_logs WHERE `+filter, userID, success).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nlpLogColumns+` FROM nlp_logs
		WHERE `+filter+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, userID, success, q.Limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []models.NlpLog{}
	for rows.Next() {
		l, err := scanNlpLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

func (s *NlpLogStore) Stats(ctx context.Context) (models.NLPStats, error) {
	stats := models.NLPStats{ByEngine: map[string]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_success),
		       COALESCE(AVG(confidence), 0)::float8,
		       COUNT(*) FILTER (WHERE corrections IS NOT NULL)
		FROM nlp_logs`).Scan(&stats.Total, &stats.Successful, &stats.AverageConfidence, &stats.Corrected)
	if err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT engine, COUNT(*) FROM nlp_logs GROUP BY engine`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var engine string
		var n int
		if err := rows.Scan(&engine, &n); err != nil {
			return stats, err
		}
		stats.ByEngine[engine] = n
	}
	return stats, rows.Err()
}

// ============================================================================
// KEYWORD CONFIG
// ============================================================================

type NlpConfigStore struct {
	db *sql.DB
}

func NewNlpConfigStore(db *sql.DB) *NlpConfigStore {
	return &NlpConfigStore{db: db}
}

// Load returns the stored config; found is false when no row exists.
func (s *NlpConfigStore) Load(ctx context.Context) (cfg nlp.Config, found bool, err error) {
	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT config FROM nlp_config WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nlp.Config{}, false, nil
	}
	if err != nil {
		return nlp.Config{}, false, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nlp.Config{}, false, fmt.Errorf("decode nlp_config: %w", err)
	}
	return cfg, true, nil
}

func (s *NlpConfigStore) Save(ctx context.Context, cfg nlp.Config, updatedBy string) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nlp_config (id, config, updated_by, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET config = EXCLUDED.config, updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		string(raw), updatedBy)
	return err
}

// ============================================================================
// AI QUOTA
// ============================================================================

type QuotaStore struct {
	db *sql.DB
}

func NewQuotaStore(db *sql.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

func (s *QuotaStore) Used(ctx context.Context, userID string, day time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM nlp_ai_usage WHERE user_id = $1 AND usage_date = $2::date`,
		userID, day.Format(models.DateLayout)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Reserve takes one unit of the day's quota if fewer than limit are used.
// The check and the increment are a single statement so concurrent calls
// cannot overshoot the limit.
func (s *QuotaStore) Reserve(ctx context.Context, userID string, day time.Time, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO nlp_ai_usage (user_id, usage_date, count) VALUES ($1, $2::date, 1)
		ON CONFLICT (user_id, usage_date) DO UPDATE SET count = nlp_ai_usage.count + 1
		WHERE nlp_ai_usage.count < $3
		RETURNING count`, userID, day.Format(models.DateLayout), limit).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Release gives back a unit taken by Reserve.
func (s *QuotaStore) Release(ctx context.Context, userID string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE nlp_ai_usage SET count = count - 1
		WHERE user_id = $1 AND usage_date = $2::date AND count > 0`,
		userID, day.Format(models.DateLayout))
	return err
}
