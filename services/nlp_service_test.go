package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
	"github.com/hade267/doan-VND-sub000/utils"
)

type fakeAI struct {
	enabled bool
	err     error
	result  nlp.Candidate
	calls   int
}

func (f *fakeAI) Enabled() bool { return f.enabled }

func (f *fakeAI) Parse(context.Context, string, nlp.Config, time.Time) (nlp.Candidate, error) {
	f.calls++
	return f.result, f.err
}

type fakeQuota struct {
	mu   sync.Mutex
	used map[string]int
}

func dayKey(userID string, day time.Time) string {
	return userID + "|" + day.Format(models.DateLayout)
}

func (f *fakeQuota) Used(_ context.Context, userID string, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[dayKey(userID, day)], nil
}

func (f *fakeQuota) Reserve(_ context.Context, userID string, day time.Time, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used[dayKey(userID, day)] >= limit {
		return false, nil
	}
	f.used[dayKey(userID, day)]++
	return true, nil
}

func (f *fakeQuota) Release(_ context.Context, userID string, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[dayKey(userID, day)]--
	return nil
}

type fakeLogs struct {
	created []models.NlpLog
	linked  map[string]json.RawMessage
	err     error
}

func (f *fakeLogs) Create(_ context.Context, l models.NlpLog) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, l)
	return "log-1", nil
}

func (f *fakeLogs) Link(_ context.Context, _, logID, txID string, corrections json.RawMessage) error {
	f.linked[logID+"->"+txID] = corrections
	return nil
}

func (f *fakeLogs) SetCorrections(context.Context, string, string, json.RawMessage) (models.NlpLog, error) {
	return models.NlpLog{}, errors.New("not implemented")
}

func (f *fakeLogs) List(context.Context, string, models.NlpLogQuery) ([]models.NlpLog, int, error) {
	return f.created, len(f.created), nil
}

type fakeCreator struct {
	got *models.TransactionRequest
}

func (f *fakeCreator) Create(_ context.Context, userID string, req models.TransactionRequest) (models.TransactionResult, error) {
	f.got = &req
	return models.TransactionResult{Transaction: models.Transaction{ID: "tx-1", UserID: userID}, Alerts: []models.BudgetAlert{}}, nil
}

type nlpFixture struct {
	svc     *NLPService
	ai      *fakeAI
	quota   *fakeQuota
	logs    *fakeLogs
	creator *fakeCreator
}

func newNLPFixture(ai *fakeAI) *nlpFixture {
	cfg := testNLPConfig()
	configs := nlp.NewConfigCache(func(context.Context) (nlp.Config, error) { return cfg, nil }, time.Minute, quietLogger())
	f := &nlpFixture{
		ai:      ai,
		quota:   &fakeQuota{used: map[string]int{}},
		logs:    &fakeLogs{linked: map[string]json.RawMessage{}},
		creator: &fakeCreator{},
	}
	categories := fakeCategories{
		"default-food": {ID: "default-food", Name: "Ăn uống", Type: models.TypeExpense, IsDefault: true},
		"own-food":     {ID: "own-food", Name: "ăn uống", Type: models.TypeExpense},
		"salary":       {ID: "salary", Name: "Lương", Type: models.TypeIncome, IsDefault: true},
	}
	f.svc = NewNLPService(configs, nlp.NewResultCache(time.Minute), ai, f.quota, f.logs, categories, f.creator,
		NLPOptions{DailyQuota: 2, AutoThreshold: 0.6, Location: time.UTC}, quietLogger())
	f.svc.now = func() time.Time { return parseNow }
	return f
}

var aiCandidate = nlp.Candidate{
	Type: nlp.TypeExpense, Amount: 45000, Category: "Ăn uống", Date: parseNow,
	Confidence: nlp.Confidence{Type: 1, Amount: 1, Category: 1},
}

func statusOf(err error) int {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

func TestNLPParseRuleEngine(t *testing.T) {
	f := newNLPFixture(&fakeAI{enabled: true, result: aiCandidate})

	resp, err := f.svc.Parse(context.Background(), "u1", "ăn phở 50k", models.EngineRule)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Engine != models.EngineRule || f.ai.calls != 0 {
		t.Errorf("engine %s, ai calls %d", resp.Engine, f.ai.calls)
	}
	if !resp.Candidate.Amount.Equal(dec("50000")) || resp.Candidate.Category != "Ăn uống" {
		t.Errorf("candidate = %+v", resp.Candidate)
	}
	if resp.Candidate.CategoryID == nil || *resp.Candidate.CategoryID != "own-food" {
		t.Errorf("expected the user's own category, got %v", resp.Candidate.CategoryID)
	}
	if resp.LogID != "log-1" || len(f.logs.created) != 1 || !f.logs.created[0].IsSuccess {
		t.Errorf("log = %+v", f.logs.created)
	}
}

func TestNLPParseAIEngine(t *testing.T) {
	f := newNLPFixture(&fakeAI{enabled: true, result: aiCandidate})
	ctx := context.Background()

	resp, err := f.svc.Parse(ctx, "u1", "hôm nay ăn phở", models.EngineAI)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Engine != models.EngineAI || resp.Cached || f.quota.used[dayKey("u1", parseNow)] != 1 {
		t.Fatalf("first call: engine %s cached %v quota %v", resp.Engine, resp.Cached, f.quota.used)
	}

	resp, err = f.svc.Parse(ctx, "u1", "hôm nay ăn phở", models.EngineAI)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached || f.ai.calls != 1 || f.quota.used[dayKey("u1", parseNow)] != 1 {
		t.Fatalf("second call must be served from cache: cached %v calls %d", resp.Cached, f.ai.calls)
	}

	if _, err := f.svc.Parse(ctx, "u1", "mua sách", models.EngineAI); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Parse(ctx, "u1", "mua bút", models.EngineAI)
	if statusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after quota, got %v", err)
	}

	// other users keep their own quota
	if _, err := f.svc.Parse(ctx, "u2", "mua bút", models.EngineAI); err != nil {
		t.Fatal(err)
	}
}

func TestNLPParseAIFailures(t *testing.T) {
	_, err := newNLPFixture(&fakeAI{}).svc.Parse(context.Background(), "u1", "ăn phở 50k", models.EngineAI)
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 when AI is not configured, got %v", err)
	}

	f := newNLPFixture(&fakeAI{enabled: true, err: errors.New("timeout")})
	resp, err := f.svc.Parse(context.Background(), "u1", "ăn phở 50k", models.EngineAI)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Engine != models.EngineRule || len(resp.Warnings) != 1 || resp.Warnings[0] != warnAIFailed {
		t.Errorf("fallback: engine %s warnings %v", resp.Engine, resp.Warnings)
	}
	if f.quota.used[dayKey("u1", parseNow)] != 0 {
		t.Error("failed calls must not consume quota")
	}
}

func TestNLPParseAuto(t *testing.T) {
	tests := []struct {
		name      string
		ai        *fakeAI
		text      string
		usedQuota int
		engine    string
		warning   string
	}{
		{"confident rules skip AI", &fakeAI{enabled: true, result: aiCandidate}, "ăn phở cơm 50k", 0, models.EngineRule, ""},
		{"weak rules use AI", &fakeAI{enabled: true, result: aiCandidate}, "50k", 0, models.EngineAI, ""},
		{"AI disabled", &fakeAI{}, "50k", 0, models.EngineRule, warnAIDisabled},
		{"quota exhausted", &fakeAI{enabled: true, result: aiCandidate}, "50k", 2, models.EngineRule, warnAIQuota},
		{"AI failed", &fakeAI{enabled: true, err: errors.New("boom")}, "50k", 0, models.EngineRule, warnAIFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNLPFixture(tt.ai)
			f.quota.used[dayKey("u1", parseNow)] = tt.usedQuota

			resp, err := f.svc.Parse(context.Background(), "u1", tt.text, models.EngineAuto)
			if err != nil {
				t.Fatal(err)
			}
			if resp.Engine != tt.engine {
				t.Errorf("engine = %s, want %s", resp.Engine, tt.engine)
			}
			if tt.warning == "" && len(resp.Warnings) != 0 {
				t.Errorf("unexpected warnings %v", resp.Warnings)
			}
			if tt.warning != "" && (len(resp.Warnings) == 0 || resp.Warnings[0] != tt.warning) {
				t.Errorf("warnings = %v, want %q", resp.Warnings, tt.warning)
			}
		})
	}
}

func TestNLPParseLogFailureIsAWarning(t *testing.T) {
	f := newNLPFixture(&fakeAI{})
	f.logs.err = errors.New("db down")

	resp, err := f.svc.Parse(context.Background(), "u1", "ăn phở 50k", models.EngineRule)
	if err != nil {
		t.Fatal(err)
	}
	if resp.LogID != "" || len(resp.Warnings) != 1 || resp.Warnings[0] != warnLogNotSaved {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNLPCreateTransaction(t *testing.T) {
	f := newNLPFixture(&fakeAI{})

	_, err := f.svc.CreateTransaction(context.Background(), "u1", models.NLPTransactionRequest{Text: "ăn phở"})
	if statusOf(err) != http.StatusBadRequest || f.creator.got != nil {
		t.Fatalf("expected 400 without amount, got %v", err)
	}

	amount := dec("60000")
	resp, err := f.svc.CreateTransaction(context.Background(), "u1", models.NLPTransactionRequest{
		Text:   "ăn phở 50k",
		Amount: &amount,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !f.creator.got.Amount.Equal(amount) || *f.creator.got.CategoryID != "own-food" {
		t.Errorf("created = %+v", f.creator.got)
	}
	if resp.Transaction.ID != "tx-1" {
		t.Errorf("transaction = %+v", resp.Transaction)
	}

	raw, ok := f.logs.linked["log-1->tx-1"]
	if !ok {
		t.Fatalf("log not linked: %v", f.logs.linked)
	}
	var corrections map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &corrections); err != nil {
		t.Fatal(err)
	}
	if corrections["amount"]["to"] != "60000" {
		t.Errorf("corrections = %s", raw)
	}
}

func TestNLPQuota(t *testing.T) {
	f := newNLPFixture(&fakeAI{enabled: true})
	f.quota.used[dayKey("u1", parseNow)] = 5

	q, err := f.svc.Quota(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if q.Remaining != 0 || q.Limit != 2 || q.Date != "2025-01-15" || !q.AIEnabled {
		t.Errorf("quota = %+v", q)
	}
}
