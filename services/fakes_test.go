package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hade267/doan-VND-sub000/models"

	"github.com/shopspring/decimal"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(s string) models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeCategories map[string]models.Category

func (f fakeCategories) Get(_ context.Context, _, id string) (models.Category, error) {
	c, ok := f[id]
	if !ok {
		return models.Category{}, sql.ErrNoRows
	}
	return c, nil
}

func (f fakeCategories) List(_ context.Context, _, categoryType string) ([]models.Category, error) {
	out := []models.Category{}
	for _, c := range f {
		if categoryType == "" || c.Type == categoryType {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeBudgetRepo struct {
	budgets []models.Budget
	err     error
}

func (f *fakeBudgetRepo) List(context.Context, string) ([]models.Budget, error) {
	return f.budgets, nil
}

func (f *fakeBudgetRepo) ActiveForCategory(_ context.Context, _, categoryID string) ([]models.Budget, error) {
	var out []models.Budget
	for _, b := range f.budgets {
		if b.CategoryID == categoryID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBudgetRepo) Get(_ context.Context, _, id string) (models.Budget, error) {
	for _, b := range f.budgets {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Budget{}, sql.ErrNoRows
}

func (f *fakeBudgetRepo) Create(_ context.Context, userID string, req models.BudgetRequest) (models.Budget, error) {
	if f.err != nil {
		return models.Budget{}, f.err
	}
	b := models.Budget{ID: "new", UserID: userID, CategoryID: req.CategoryID, Period: req.Period,
		AmountLimit: *req.AmountLimit, StartDate: *req.StartDate, EndDate: req.EndDate, IsActive: true}
	f.budgets = append(f.budgets, b)
	return b, nil
}

func (f *fakeBudgetRepo) Update(context.Context, string, string, models.BudgetRequest) (models.Budget, error) {
	return models.Budget{}, f.err
}

func (f *fakeBudgetRepo) Delete(context.Context, string, string) error {
	return f.err
}

// fakeSpending sums a fixed list of expenses, honouring the window and exclusion.
type fakeSpending struct {
	expenses []models.Transaction
	calls    int
}

func (f *fakeSpending) SumExpenses(_ context.Context, _, categoryID string, from, to time.Time, excludeTxID string) (decimal.Decimal, error) {
	f.calls++
	total := decimal.Zero
	for _, t := range f.expenses {
		if t.CategoryID == nil || *t.CategoryID != categoryID || t.ID == excludeTxID {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

type fakeTxRepo struct {
	txs     map[string]models.Transaction
	created []models.TransactionRequest
}

func (f *fakeTxRepo) List(context.Context, string, models.TransactionQuery) ([]models.Transaction, int, error) {
	out := []models.Transaction{}
	for _, t := range f.txs {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (f *fakeTxRepo) Get(_ context.Context, _, id string) (models.Transaction, error) {
	t, ok := f.txs[id]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeTxRepo) Create(_ context.Context, userID string, req models.TransactionRequest) (models.Transaction, error) {
	f.created = append(f.created, req)
	return models.Transaction{ID: "tx-new", UserID: userID, Type: req.Type, Amount: *req.Amount,
		Date: *req.Date, CategoryID: req.CategoryID, Description: req.Description}, nil
}

func (f *fakeTxRepo) Update(_ context.Context, userID, id string, req models.TransactionRequest) (models.Transaction, error) {
	t := models.Transaction{ID: id, UserID: userID, Type: req.Type, Amount: *req.Amount,
		Date: *req.Date, CategoryID: req.CategoryID, Description: req.Description}
	f.txs[id] = t
	return t, nil
}

func (f *fakeTxRepo) Delete(_ context.Context, _, id string) error {
	if _, ok := f.txs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.txs, id)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) NotifyUser(userID, msgType string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, userID+":"+msgType)
}

type recordingMailer struct {
	sent chan models.BudgetAlert
}

func (m *recordingMailer) Enabled() bool { return true }

func (m *recordingMailer) SendBudgetAlert(_ context.Context, _ string, alert models.BudgetAlert) error {
	m.sent <- alert
	return nil
}
