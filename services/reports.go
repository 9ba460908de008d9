package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
)

type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Totals returns income and expense sums between from and to inclusive.
func (s *ReportStore) Totals(ctx context.Context, userID string, from, to models.Date) (decimal.Decimal, decimal.Decimal, error) {
	var income, expense decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)
		FROM transactions
		WHERE user_id = $1 AND transaction_date BETWEEN $2::date AND $3::date`,
		userID, from, to).Scan(&income, &expense)
	return income, expense, err
}

// ExpensesByCategory groups expenses by category, largest first.
func (s *ReportStore) ExpensesByCategory(ctx context.Context, userID string, from, to models.Date) ([]models.CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.category_id, COALESCE(c.name, ''), SUM(t.amount), COUNT(*)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.type = 'expense'
		  AND t.transaction_date BETWEEN $2::date AND $3::date
		GROUP BY t.category_id, c.name
		ORDER BY SUM(t.amount) DESC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []models.CategoryTotal{}
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.CategoryName, &ct.Total, &ct.Count); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

type ReportRepository interface {
	Totals(ctx context.Context, userID string, from, to models.Date) (decimal.Decimal, decimal.Decimal, error)
	ExpensesByCategory(ctx context.Context, userID string, from, to models.Date) ([]models.CategoryTotal, error)
}

type ReportService struct {
	store ReportRepository
	loc   *time.Location
	now   func() time.Time
}

func NewReportService(store ReportRepository, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{store: store, loc: loc, now: time.Now}
}

// Range resolves the query bounds. The default is the current month.
func (s *ReportService) Range(q models.ReportQuery) (models.Date, models.Date, error) {
	now := s.now().In(s.loc)
	from := models.NewDate(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
	to := models.NewDate(from.AddDate(0, 1, -1))

	var err error
	if q.From != "" {
		if from, err = models.ParseDate(q.From); err != nil {
			return from, to, utils.ValidationError(map[string]string{"from": err.Error()})
		}
	}
	if q.To != "" {
		if to, err = models.ParseDate(q.To); err != nil {
			return from, to, utils.ValidationError(map[string]string{"to": err.Error()})
		}
	}
	if to.Before(from.Time) {
		return from, to, utils.ValidationError(map[string]string{"to": "must not be before from"})
	}
	return from, to, nil
}

func (s *ReportService) Summary(ctx context.Context, userID string, q models.ReportQuery) (models.Summary, error) {
	from, to, err := s.Range(q)
	if err != nil {
		return models.Summary{}, err
	}

	income, expense, err := s.store.Totals(ctx, userID, from, to)
	if err != nil {
		return models.Summary{}, utils.Internal(fmt.Errorf("report totals: %w", err))
	}
	byCategory, err := s.store.ExpensesByCategory(ctx, userID, from, to)
	if err != nil {
		return models.Summary{}, utils.Internal(fmt.Errorf("report categories: %w", err))
	}
	for i := range byCategory {
		if byCategory[i].CategoryName == "" {
			byCategory[i].CategoryName = "Chưa phân loại"
		}
	}

	return models.Summary{
		From:         from,
		To:           to,
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      income.Sub(expense),
		ByCategory:   byCategory,
	}, nil
}

// Chart renders expenses per category as a PNG bar chart.
func (s *ReportService) Chart(ctx context.Context, userID string, q models.ReportQuery) ([]byte, error) {
	summary, err := s.Summary(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return RenderCategoryChart(summary)
}

func RenderCategoryChart(summary models.Summary) ([]byte, error) {
	bars := make([]chart.Value, 0, len(summary.ByCategory))
	maxValue := 0.0
	for _, ct := range summary.ByCategory {
		v, _ := ct.Total.Float64()
		maxValue = math.Max(maxValue, v)
		bars = append(bars, chart.Value{
			Label: ct.CategoryName,
			Value: v,
			Style: chart.Style{
				StrokeColor: chart.ColorRed,
				FillColor:   chart.ColorRed.WithAlpha(160),
			},
		})
	}
	if len(bars) == 0 {
		bars = append(bars, chart.Value{Label: "Không có dữ liệu", Value: 0})
	}
	// a zero-height range cannot be rendered
	if maxValue == 0 {
		maxValue = 1
	}

	graph := chart.BarChart{
		Title: fmt.Sprintf("Chi tiêu %s - %s", summary.From, summary.To),
		TitleStyle: chart.Style{
			FontSize:  14,
			FontColor: chart.ColorBlack,
		},
		Width:    1000,
		Height:   500,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0fđ", v.(float64))
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render category chart: %w", err)
	}
	return buffer.Bytes(), nil
}
