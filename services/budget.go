package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"

	"github.com/shopspring/decimal"
)

var (
	warningRatio  = decimal.NewFromFloat(0.85)
	hundred       = decimal.NewFromInt(100)
	errNotExpense = utils.BadRequest("Budgets can only be set on expense categories")
)

// ComputeWindow returns the inclusive [start, end] range a budget covers.
// Without an explicit end date the window is one period long, ending one
// second before the next period starts. An explicit end date covers that
// whole day.
func ComputeWindow(start models.Date, end *models.Date, period string) (time.Time, time.Time, error) {
	windowStart := start.Time
	if end != nil {
		return windowStart, end.Time.AddDate(0, 0, 1).Add(-time.Second), nil
	}

	var next time.Time
	switch period {
	case models.PeriodDaily:
		next = windowStart.AddDate(0, 0, 1)
	case models.PeriodWeekly:
		next = windowStart.AddDate(0, 0, 7)
	case models.PeriodMonthly:
		next = windowStart.AddDate(0, 1, 0)
	case models.PeriodYearly:
		next = windowStart.AddDate(1, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown budget period %q", period)
	}
	return windowStart, next.Add(-time.Second), nil
}

// EvaluateAlert projects spent+amount against limit. It returns the alert
// status (empty below 85%) and the projected percentage.
func EvaluateAlert(spent, amount, limit decimal.Decimal) (string, float64) {
	projected := spent.Add(amount)
	if !limit.IsPositive() {
		return models.AlertExceeded, 100
	}

	pct, _ := projected.Mul(hundred).Div(limit).Round(2).Float64()
	switch {
	case projected.GreaterThanOrEqual(limit):
		return models.AlertExceeded, pct
	case projected.GreaterThanOrEqual(limit.Mul(warningRatio)):
		return models.AlertWarning, pct
	}
	return models.AlertNone, pct
}

func windowContains(start, end time.Time, d models.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// ============================================================================
// STORE
// ============================================================================

type BudgetStore struct {
	db *sql.DB
}

func NewBudgetStore(db *sql.DB) *BudgetStore {
	return &BudgetStore{db: db}
}

const budgetColumns = `
	b.id, b.user_id, b.category_id, c.name, b.period, b.amount_limit,
	b.start_date, b.end_date, b.is_active, b.created_at, b.updated_at`

func scanBudget(row interface{ Scan(...interface{}) error }) (models.Budget, error) {
	var b models.Budget
	err := row.Scan(
		&b.ID, &b.UserID, &b.CategoryID, &b.CategoryName, &b.Period, &b.AmountLimit,
		&b.StartDate, &b.EndDate, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (s *BudgetStore) queryBudgets(ctx context.Context, query string, args ...interface{}) ([]models.Budget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := []models.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *BudgetStore) List(ctx context.Context, userID string) ([]models.Budget, error) {
	return s.queryBudgets(ctx, `
		SELECT`+budgetColumns+`
		FROM budgets b
		JOIN categories c ON c.id = b.category_id
		WHERE b.user_id = $1
		ORDER BY b.start_date DESC, b.created_at DESC`, userID)
}

// ActiveForCategory returns the user's active budgets on a category.
func (s *BudgetStore) ActiveForCategory(ctx context.Context, userID, categoryID string) ([]models.Budget, error) {
	return s.queryBudgets(ctx, `
		SELECT`+budgetColumns+`
		FROM budgets b
		JOIN categories c ON c.id = b.category_id
		WHERE b.user_id = $1 AND b.category_id = $2 AND b.is_active`, userID, categoryID)
}

func (s *BudgetStore) Get(ctx context.Context, userID, id string) (models.Budget, error) {
	return scanBudget(s.db.QueryRowContext(ctx, `
		SELECT`+budgetColumns+`
		FROM budgets b
		JOIN categories c ON c.id = b.category_id
		WHERE b.id = $1 AND b.user_id = $2`, id, userID))
}

func (s *BudgetStore) Create(ctx context.Context, userID string, req models.BudgetRequest) (models.Budget, error) {
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO budgets (user_id, category_id, period, amount_limit, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		userID, req.CategoryID, req.Period, *req.AmountLimit, *req.StartDate, req.EndDate, isActive,
	).Scan(&id)
	if err != nil {
		return models.Budget{}, err
	}
	return s.Get(ctx, userID, id)
}

func (s *BudgetStore) Update(ctx context.Context, userID, id string, req models.BudgetRequest) (models.Budget, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET category_id = $3, period = $4, amount_limit = $5, start_date = $6, end_date = $7,
		    is_active = COALESCE($8, is_active), updated_at = NOW()
		WHERE id = $1 AND user_id = $2`,
		id, userID, req.CategoryID, req.Period, *req.AmountLimit, *req.StartDate, req.EndDate, req.IsActive,
	)
	if err != nil {
		return models.Budget{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Budget{}, sql.ErrNoRows
	}
	return s.Get(ctx, userID, id)
}

func (s *BudgetStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ============================================================================
// SERVICE
// ============================================================================

type BudgetRepository interface {
	List(ctx context.Context, userID string) ([]models.Budget, error)
	ActiveForCategory(ctx context.Context, userID, categoryID string) ([]models.Budget, error)
	Get(ctx context.Context, userID, id string) (models.Budget, error)
	Create(ctx context.Context, userID string, req models.BudgetRequest) (models.Budget, error)
	Update(ctx context.Context, userID, id string, req models.BudgetRequest) (models.Budget, error)
	Delete(ctx context.Context, userID, id string) error
}

// SpendingReader sums expense transactions of a category inside [from, to].
// excludeTxID, when set, leaves one transaction out.
type SpendingReader interface {
	SumExpenses(ctx context.Context, userID, categoryID string, from, to time.Time, excludeTxID string) (decimal.Decimal, error)
}

type CategoryReader interface {
	Get(ctx context.Context, userID, id string) (models.Category, error)
	List(ctx context.Context, userID, categoryType string) ([]models.Category, error)
}

type BudgetService struct {
	budgets    BudgetRepository
	categories CategoryReader
	spending   SpendingReader
}

func NewBudgetService(budgets BudgetRepository, categories CategoryReader, spending SpendingReader) *BudgetService {
	return &BudgetService{budgets: budgets, categories: categories, spending: spending}
}

func (s *BudgetService) Get(ctx context.Context, userID, id string) (models.Budget, error) {
	b, err := s.budgets.Get(ctx, userID, id)
	return b, utils.FromDBError(err, "Budget not found")
}

func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	return utils.FromDBError(s.budgets.Delete(ctx, userID, id), "Budget not found")
}

func (s *BudgetService) Create(ctx context.Context, userID string, req models.BudgetRequest) (models.Budget, error) {
	if err := s.checkCategory(ctx, userID, req.CategoryID); err != nil {
		return models.Budget{}, err
	}
	b, err := s.budgets.Create(ctx, userID, req)
	if err != nil {
		return models.Budget{}, conflictAs(utils.FromDBError(err, "Budget not found"),
			"A budget for this category, period and start date already exists")
	}
	slog.InfoContext(ctx, "budget created", "budget_id", b.ID, "user_id", userID)
	return b, nil
}

func (s *BudgetService) Update(ctx context.Context, userID, id string, req models.BudgetRequest) (models.Budget, error) {
	if err := s.checkCategory(ctx, userID, req.CategoryID); err != nil {
		return models.Budget{}, err
	}
	b, err := s.budgets.Update(ctx, userID, id, req)
	if err != nil {
		return models.Budget{}, conflictAs(utils.FromDBError(err, "Budget not found"),
			"A budget for this category, period and start date already exists")
	}
	slog.InfoContext(ctx, "budget updated", "budget_id", b.ID, "user_id", userID)
	return b, nil
}

func (s *BudgetService) checkCategory(ctx context.Context, userID, categoryID string) error {
	cat, err := s.categories.Get(ctx, userID, categoryID)
	if err != nil {
		return categoryRefError(err)
	}
	if cat.Type != models.TypeExpense {
		return errNotExpense
	}
	return nil
}

// Usage measures spending inside the budget's window.
func (s *BudgetService) Usage(ctx context.Context, b models.Budget, excludeTxID string) (models.BudgetUsage, error) {
	start, end, err := ComputeWindow(b.StartDate, b.EndDate, b.Period)
	if err != nil {
		return models.BudgetUsage{}, err
	}

	spent, err := s.spending.SumExpenses(ctx, b.UserID, b.CategoryID, start, end, excludeTxID)
	if err != nil {
		return models.BudgetUsage{}, fmt.Errorf("sum expenses: %w", err)
	}

	status, pct := EvaluateAlert(spent, decimal.Zero, b.AmountLimit)
	if status == models.AlertNone {
		status = models.UsageOK
	}

	return models.BudgetUsage{
		Budget:      b,
		WindowStart: start,
		WindowEnd:   end,
		Spent:       spent,
		Remaining:   b.AmountLimit.Sub(spent),
		Percentage:  pct,
		Status:      status,
	}, nil
}

func (s *BudgetService) UsageByID(ctx context.Context, userID, id string) (models.BudgetUsage, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.BudgetUsage{}, err
	}
	return s.Usage(ctx, b, "")
}

// ListWithUsage returns every budget of the user with its current usage.
func (s *BudgetService) ListWithUsage(ctx context.Context, userID string) ([]models.BudgetUsage, error) {
	budgets, err := s.budgets.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	out := make([]models.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		u, err := s.Usage(ctx, b, "")
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Alerts evaluates an expense of amount on categoryID dated date against
// every active budget whose window contains that date.
func (s *BudgetService) Alerts(ctx context.Context, userID, categoryID string, date models.Date, amount decimal.Decimal, excludeTxID string) ([]models.BudgetAlert, error) {
	budgets, err := s.budgets.ActiveForCategory(ctx, userID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}

	alerts := []models.BudgetAlert{}
	for _, b := range budgets {
		start, end, err := ComputeWindow(b.StartDate, b.EndDate, b.Period)
		if err != nil {
			return nil, err
		}
		if !windowContains(start, end, date) {
			continue
		}

		spent, err := s.spending.SumExpenses(ctx, userID, categoryID, start, end, excludeTxID)
		if err != nil {
			return nil, fmt.Errorf("sum expenses: %w", err)
		}

		status, pct := EvaluateAlert(spent, amount, b.AmountLimit)
		if status == models.AlertNone {
			continue
		}
		alerts = append(alerts, models.BudgetAlert{
			BudgetID:     b.ID,
			CategoryID:   b.CategoryID,
			CategoryName: b.CategoryName,
			Period:       b.Period,
			Limit:        b.AmountLimit,
			Spent:        spent,
			Projected:    spent.Add(amount),
			Percentage:   pct,
			Status:       status,
			WindowStart:  start,
			WindowEnd:    end,
		})
	}
	return alerts, nil
}
