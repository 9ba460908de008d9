package services

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/hade267/doan-VND-sub000/config"
	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
	"github.com/hade267/doan-VND-sub000/utils"
)

// startPostgres runs a throwaway database. Set INTEGRATION_TESTS=1 to enable.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run database tests")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("sochitieu"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	db, err := config.InitDB(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := config.RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	// a second run must be a no-op
	if err := config.RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrations rerun: %v", err)
	}
	return db
}

func TestStoresAgainstPostgres(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	users := NewUserStore(db)
	categories := NewCategoryStore(db)
	txs := NewTransactionStore(db)
	budgets := NewBudgetService(NewBudgetStore(db), categories, txs)

	user, err := users.Create(ctx, "Lan@Example.com", "hash", "Lan")
	if err != nil {
		t.Fatal(err)
	}
	if user.Email != "lan@example.com" || user.Role != models.RoleUser || !user.IsActive {
		t.Errorf("user = %+v", user)
	}
	if _, err := users.Create(ctx, "lan@example.com", "hash", "Lan"); statusOf(err) != http.StatusConflict {
		t.Errorf("duplicate email: %v", err)
	}

	sessions := NewSessionStore(db)
	refresh := utils.GenerateRefreshToken()
	if err := sessions.Create(ctx, user.ID, refresh, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	var stored string
	if err := db.QueryRowContext(ctx, `SELECT refresh_token FROM sessions WHERE user_id = $1`, user.ID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == refresh || stored != utils.HashRefreshToken(refresh) {
		t.Errorf("refresh token stored as %q", stored)
	}
	rotated := utils.GenerateRefreshToken()
	if id, err := sessions.Rotate(ctx, refresh, rotated, time.Now().Add(time.Hour)); err != nil || id != user.ID {
		t.Fatalf("rotate = %q, %v", id, err)
	}
	if _, err := sessions.Rotate(ctx, refresh, utils.GenerateRefreshToken(), time.Now().Add(time.Hour)); err == nil {
		t.Error("old refresh token must not rotate twice")
	}
	if err := sessions.Delete(ctx, rotated); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Rotate(ctx, rotated, utils.GenerateRefreshToken(), time.Now().Add(time.Hour)); err == nil {
		t.Error("deleted session must not rotate")
	}

	defaults, err := categories.List(ctx, user.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(defaults) != 11 {
		t.Errorf("expected 11 default categories, got %d", len(defaults))
	}

	food, err := categories.Create(ctx, user.ID, models.CategoryRequest{Name: "Cà phê", Type: models.TypeExpense})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := categories.Create(ctx, user.ID, models.CategoryRequest{Name: "Cà phê", Type: models.TypeExpense}); statusOf(err) != http.StatusConflict {
		t.Errorf("duplicate category: %v", err)
	}

	limit := dec("100000")
	start := date("2025-01-01")
	if _, err := budgets.Create(ctx, user.ID, models.BudgetRequest{
		CategoryID: food.ID, Period: models.PeriodMonthly, AmountLimit: &limit, StartDate: &start,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := budgets.Create(ctx, user.ID, models.BudgetRequest{
		CategoryID: food.ID, Period: models.PeriodMonthly, AmountLimit: &limit, StartDate: &start,
	}); statusOf(err) != http.StatusConflict {
		t.Errorf("duplicate budget: %v", err)
	}

	svc := NewTransactionService(txs, categories, budgets, nil, nil, quietLogger())
	var last models.Transaction
	for _, day := range []string{"2025-01-01", "2025-01-31", "2025-02-01"} {
		res, err := svc.Create(ctx, user.ID, expense(food.ID, "45000", day))
		if err != nil {
			t.Fatal(err)
		}
		last = res.Transaction
	}

	spent, err := txs.SumExpenses(ctx, user.ID, food.ID,
		start.Time, time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), "")
	if err != nil {
		t.Fatal(err)
	}
	if !spent.Equal(dec("90000")) {
		t.Errorf("january spent = %s", spent)
	}

	res, err := svc.Create(ctx, user.ID, expense(food.ID, "5000", "2025-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Status != models.AlertWarning {
		t.Errorf("alerts = %+v", res.Alerts)
	}

	if _, err := categories.Update(ctx, user.ID, food.ID,
		models.CategoryRequest{Name: "Cà phê", Type: models.TypeIncome}); statusOf(err) != http.StatusConflict {
		t.Errorf("type change of a used category: %v", err)
	}
	if got, err := categories.Get(ctx, user.ID, food.ID); err != nil || got.Type != models.TypeExpense {
		t.Errorf("category after rejected update = %+v, %v", got, err)
	}
	if _, err := categories.Update(ctx, user.ID, food.ID,
		models.CategoryRequest{Name: "Cà phê sữa", Type: models.TypeExpense}); err != nil {
		t.Errorf("rename of a used category: %v", err)
	}
	spare, err := categories.Create(ctx, user.ID, models.CategoryRequest{Name: "Quà", Type: models.TypeExpense})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := categories.Update(ctx, user.ID, spare.ID,
		models.CategoryRequest{Name: "Quà", Type: models.TypeIncome}); err != nil || got.Type != models.TypeIncome {
		t.Errorf("type change of an unused category = %+v, %v", got, err)
	}

	shared := defaults[0]
	if _, err := categories.Update(ctx, user.ID, shared.ID,
		models.CategoryRequest{Name: "x", Type: shared.Type}); statusOf(err) != http.StatusForbidden {
		t.Errorf("update of a default category: %v", err)
	}
	if err := categories.Delete(ctx, user.ID, shared.ID); statusOf(err) != http.StatusForbidden {
		t.Errorf("delete of a default category: %v", err)
	}

	if err := categories.Delete(ctx, user.ID, food.ID); err != nil {
		t.Fatal(err)
	}
	after, err := txs.Get(ctx, user.ID, last.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.CategoryID != nil {
		t.Error("deleting a category must uncategorise its transactions")
	}

	summary, err := NewReportService(NewReportStore(db), time.UTC).Summary(ctx, user.ID,
		models.ReportQuery{From: "2025-01-01", To: "2025-01-31"})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.TotalExpense.Equal(dec("95000")) {
		t.Errorf("summary = %+v", summary)
	}
}

func TestNLPStoresAgainstPostgres(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	user, err := NewUserStore(db).Create(ctx, "a@b.com", "hash", "A")
	if err != nil {
		t.Fatal(err)
	}

	quota := NewQuotaStore(db)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := quota.Reserve(ctx, user.ID, day, 3)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if used, _ := quota.Used(ctx, user.ID, day); reserved != 3 || used != 3 {
		t.Fatalf("concurrent reserve: reserved %d used %d, want 3", reserved, used)
	}
	if err := quota.Release(ctx, user.ID, day); err != nil {
		t.Fatal(err)
	}
	if ok, err := quota.Reserve(ctx, user.ID, day, 3); err != nil || !ok {
		t.Fatalf("reserve after release = %v, %v", ok, err)
	}
	if ok, _ := quota.Reserve(ctx, user.ID, day, 0); ok {
		t.Error("zero limit must never reserve")
	}
	if used, _ := quota.Used(ctx, user.ID, day.AddDate(0, 0, 1)); used != 0 {
		t.Errorf("next day used = %d", used)
	}

	logs := NewNlpLogStore(db)
	confidence := 0.8
	id, err := logs.Create(ctx, models.NlpLog{
		UserID: user.ID, InputText: "ăn phở 50k", ParsedJSON: []byte(`{"amount":"50000"}`),
		IsSuccess: true, Engine: models.EngineRule, Confidence: &confidence,
	})
	if err != nil {
		t.Fatal(err)
	}
	l, err := logs.SetCorrections(ctx, user.ID, id, []byte(`{"amount":{"from":"50000","to":"55000"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Corrections) == 0 {
		t.Error("corrections not stored")
	}
	stats, err := logs.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Corrected != 1 {
		t.Errorf("stats = %+v", stats)
	}

	configs := NewNlpConfigStore(db)
	if _, found, err := configs.Load(ctx); err != nil || found {
		t.Fatalf("empty config table: found %v err %v", found, err)
	}
	cfg := nlp.DefaultConfig()
	if err := configs.Save(ctx, cfg, user.ID); err != nil {
		t.Fatal(err)
	}
	loaded, found, err := configs.Load(ctx)
	if err != nil || !found || len(loaded.Categories) != len(cfg.Categories) {
		t.Errorf("loaded config: found %v err %v", found, err)
	}
}
