package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"

	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `
	t.id, t.user_id, t.category_id, c.name, t.type, t.amount,
	t.transaction_date, t.description, t.created_at, t.updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &t.Type, &t.Amount,
		&t.Date, &t.Description, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (s *TransactionStore) List(ctx context.Context, userID string, q models.TransactionQuery) ([]models.Transaction, int, error) {
	offset := q.Normalize()

	where := []string{"t.user_id = $1"}
	args := []interface{}{userID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Type != "" {
		add("t.type = $%d", q.Type)
	}
	if q.CategoryID != "" {
		add("t.category_id = $%d", q.CategoryID)
	}
	if q.From != "" {
		add("t.transaction_date >= $%d::date", q.From)
	}
	if q.To != "" {
		add("t.transaction_date <= $%d::date", q.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE %s
		ORDER BY t.transaction_date DESC, t.created_at DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, t)
	}
	return txs, total, rows.Err()
}

func (s *TransactionStore) Get(ctx context.Context, userID, id string) (models.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT`+transactionColumns+`
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.id = $1 AND t.user_id = $2`, id, userID))
}

func (s *TransactionStore) Create(ctx context.Context, userID string, req models.TransactionRequest) (models.Transaction, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, category_id, type, amount, transaction_date, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		userID, req.CategoryID, req.Type, *req.Amount, *req.Date, strings.TrimSpace(req.Description),
	).Scan(&id)
	if err != nil {
		return models.Transaction{}, err
	}
	return s.Get(ctx, userID, id)
}

func (s *TransactionStore) Update(ctx context.Context, userID, id string, req models.TransactionRequest) (models.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = $3, type = $4, amount = $5, transaction_date = $6, description = $7, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`,
		id, userID, req.CategoryID, req.Type, *req.Amount, *req.Date, strings.TrimSpace(req.Description),
	)
	if err != nil {
		return models.Transaction{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Transaction{}, sql.ErrNoRows
	}
	return s.Get(ctx, userID, id)
}

func (s *TransactionStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *TransactionStore) SumExpenses(ctx context.Context, userID, categoryID string, from, to time.Time, excludeTxID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND category_id = $2 AND type = 'expense'
		  AND transaction_date BETWEEN $3::date AND $4::date
		  AND ($5::text = '' OR id::text <> $5::text)`,
		userID, categoryID, from.Format(models.DateLayout), to.Format(models.DateLayout), excludeTxID,
	).Scan(&sum)
	return sum, err
}

// ============================================================================
// SERVICE
// ============================================================================

type TransactionRepository interface {
	List(ctx context.Context, userID string, q models.TransactionQuery) ([]models.Transaction, int, error)
	Get(ctx context.Context, userID, id string) (models.Transaction, error)
	Create(ctx context.Context, userID string, req models.TransactionRequest) (models.Transaction, error)
	Update(ctx context.Context, userID, id string, req models.TransactionRequest) (models.Transaction, error)
	Delete(ctx context.Context, userID, id string) error
}

type AlertEvaluator interface {
	Alerts(ctx context.Context, userID, categoryID string, date models.Date, amount decimal.Decimal, excludeTxID string) ([]models.BudgetAlert, error)
}

// AlertNotifier delivers alerts to a user's live sessions.
type AlertNotifier interface {
	NotifyUser(userID string, msgType string, payload interface{})
}

// AlertMailer emails exceeded budgets.
type AlertMailer interface {
	Enabled() bool
	SendBudgetAlert(ctx context.Context, userID string, alert models.BudgetAlert) error
}

type TransactionService struct {
	txs        TransactionRepository
	categories CategoryReader
	alerts     AlertEvaluator
	notifier   AlertNotifier
	mailer     AlertMailer
	logger     *slog.Logger
}

func NewTransactionService(txs TransactionRepository, categories CategoryReader, alerts AlertEvaluator,
	notifier AlertNotifier, mailer AlertMailer, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		txs:        txs,
		categories: categories,
		alerts:     alerts,
		notifier:   notifier,
		mailer:     mailer,
		logger:     logger,
	}
}

func (s *TransactionService) List(ctx context.Context, userID string, q models.TransactionQuery) (models.Page[models.Transaction], error) {
	txs, total, err := s.txs.List(ctx, userID, q)
	if err != nil {
		return models.Page[models.Transaction]{}, utils.FromDBError(err, "Transaction not found")
	}
	q.Normalize()
	return models.Page[models.Transaction]{Data: txs, Pagination: models.NewPagination(q.PageQuery, total)}, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (models.Transaction, error) {
	t, err := s.txs.Get(ctx, userID, id)
	return t, utils.FromDBError(err, "Transaction not found")
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	return utils.FromDBError(s.txs.Delete(ctx, userID, id), "Transaction not found")
}

func (s *TransactionService) Create(ctx context.Context, userID string, req models.TransactionRequest) (models.TransactionResult, error) {
	if err := s.checkCategory(ctx, userID, req); err != nil {
		return models.TransactionResult{}, err
	}

	alerts, err := s.evaluate(ctx, userID, req, "")
	if err != nil {
		return models.TransactionResult{}, err
	}

	t, err := s.txs.Create(ctx, userID, req)
	if err != nil {
		return models.TransactionResult{}, utils.FromDBError(err, "Transaction not found")
	}

	s.dispatch(userID, alerts)
	return models.TransactionResult{Transaction: t, Alerts: alerts}, nil
}

func (s *TransactionService) Update(ctx context.Context, userID, id string, req models.TransactionRequest) (models.TransactionResult, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return models.TransactionResult{}, err
	}
	if err := s.checkCategory(ctx, userID, req); err != nil {
		return models.TransactionResult{}, err
	}

	alerts, err := s.evaluate(ctx, userID, req, id)
	if err != nil {
		return models.TransactionResult{}, err
	}

	t, err := s.txs.Update(ctx, userID, id, req)
	if err != nil {
		return models.TransactionResult{}, utils.FromDBError(err, "Transaction not found")
	}

	s.dispatch(userID, alerts)
	return models.TransactionResult{Transaction: t, Alerts: alerts}, nil
}

func (s *TransactionService) Patch(ctx context.Context, userID, id string, patch models.PatchTransactionRequest) (models.TransactionResult, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.TransactionResult{}, err
	}
	return s.Update(ctx, userID, id, patch.Apply(existing))
}

// checkCategory enforces that a transaction's type equals its category's type.
func (s *TransactionService) checkCategory(ctx context.Context, userID string, req models.TransactionRequest) error {
	if req.CategoryID == nil {
		return nil
	}
	cat, err := s.categories.Get(ctx, userID, *req.CategoryID)
	if err != nil {
		return categoryRefError(err)
	}
	if cat.Type != req.Type {
		return &utils.AppError{
			Status:  http.StatusBadRequest,
			Message: "Transaction type does not match category type",
			Fields: map[string]string{
				"type": fmt.Sprintf("category %q is of type %s", cat.Name, cat.Type),
			},
		}
	}
	return nil
}

func (s *TransactionService) evaluate(ctx context.Context, userID string, req models.TransactionRequest, excludeTxID string) ([]models.BudgetAlert, error) {
	if req.Type != models.TypeExpense || req.CategoryID == nil {
		return []models.BudgetAlert{}, nil
	}
	alerts, err := s.alerts.Alerts(ctx, userID, *req.CategoryID, *req.Date, *req.Amount, excludeTxID)
	if err != nil {
		return nil, utils.Internal(err)
	}
	return alerts, nil
}

func (s *TransactionService) dispatch(userID string, alerts []models.BudgetAlert) {
	for _, alert := range alerts {
		if s.notifier != nil {
			s.notifier.NotifyUser(userID, "budget_alert", alert)
		}
		if alert.Status != models.AlertExceeded || s.mailer == nil || !s.mailer.Enabled() {
			continue
		}
		go func(alert models.BudgetAlert) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.mailer.SendBudgetAlert(ctx, userID, alert); err != nil {
				s.logger.Warn("budget alert email failed", "budget_id", alert.BudgetID, "error", err)
			}
		}(alert)
	}
}
