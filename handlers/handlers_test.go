package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testUserID = "11111111-1111-1111-1111-111111111111"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter mounts routes behind a fake authentication step.
func newTestRouter(mount func(r gin.IRoutes)) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler(true, quietLogger()))
	g := r.Group("/", func(c *gin.Context) {
		c.Set("user_id", testUserID)
		c.Next()
	})
	mount(g)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

type fakeTransactions struct {
	created  *models.TransactionRequest
	createFn func(req models.TransactionRequest) (models.TransactionResult, error)
}

func (f *fakeTransactions) List(context.Context, string, models.TransactionQuery) (models.Page[models.Transaction], error) {
	return models.Page[models.Transaction]{Data: []models.Transaction{}}, nil
}

func (f *fakeTransactions) Get(_ context.Context, _, id string) (models.Transaction, error) {
	return models.Transaction{}, utils.NotFound("Transaction not found")
}

func (f *fakeTransactions) Create(_ context.Context, _ string, req models.TransactionRequest) (models.TransactionResult, error) {
	f.created = &req
	return f.createFn(req)
}

func (f *fakeTransactions) Update(context.Context, string, string, models.TransactionRequest) (models.TransactionResult, error) {
	return models.TransactionResult{}, nil
}

func (f *fakeTransactions) Patch(context.Context, string, string, models.PatchTransactionRequest) (models.TransactionResult, error) {
	return models.TransactionResult{}, nil
}

func (f *fakeTransactions) Delete(context.Context, string, string) error {
	return nil
}

func transactionRouter(svc *fakeTransactions) *gin.Engine {
	h := &TransactionHandler{Transactions: svc}
	return newTestRouter(func(r gin.IRoutes) {
		r.GET("/transactions/:id", h.Get)
		r.POST("/transactions", h.Create)
		r.DELETE("/transactions/:id", h.Delete)
	})
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing amount", `{"type":"expense","date":"2025-01-10"}`, "amount"},
		{"missing date", `{"type":"expense","amount":1000}`, "date"},
		{"negative amount", `{"type":"expense","amount":-5,"date":"2025-01-10"}`, "amount"},
		{"too many decimals", `{"type":"expense","amount":1.005,"date":"2025-01-10"}`, "amount"},
		{"bad type", `{"type":"gift","amount":10,"date":"2025-01-10"}`, "type"},
		{"bad category id", `{"type":"expense","amount":10,"date":"2025-01-10","category_id":"x"}`, "category_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTransactions{}
			w, body := do(transactionRouter(svc), http.MethodPost, "/transactions", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			fields, _ := body["fields"].(map[string]interface{})
			if _, ok := fields[tt.field]; !ok {
				t.Errorf("expected field %q in %v", tt.field, body)
			}
			if svc.created != nil {
				t.Error("service must not be called for invalid input")
			}
		})
	}
}

func TestCreateTransactionReturnsAlerts(t *testing.T) {
	svc := &fakeTransactions{createFn: func(req models.TransactionRequest) (models.TransactionResult, error) {
		return models.TransactionResult{
			Transaction: models.Transaction{ID: "t1", Type: req.Type, Amount: *req.Amount},
			Alerts:      []models.BudgetAlert{{BudgetID: "b1", Status: models.AlertWarning, Percentage: 95}},
		}, nil
	}}

	w, body := do(transactionRouter(svc), http.MethodPost, "/transactions",
		`{"type":"expense","amount":"5000","date":"2025-01-10"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !svc.created.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("amount = %s", svc.created.Amount)
	}
	alerts, _ := body["alerts"].([]interface{})
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %v", body["alerts"])
	}
}

func TestCreateTransactionTypeMismatch(t *testing.T) {
	svc := &fakeTransactions{createFn: func(models.TransactionRequest) (models.TransactionResult, error) {
		return models.TransactionResult{}, &utils.AppError{
			Status:  http.StatusBadRequest,
			Message: "Transaction type does not match category type",
			Fields:  map[string]string{"type": "must match the category type"},
		}
	}}

	w, body := do(transactionRouter(svc), http.MethodPost, "/transactions",
		`{"type":"income","amount":100,"date":"2025-01-10","category_id":"22222222-2222-2222-2222-222222222222"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body["message"] != "Transaction type does not match category type" {
		t.Errorf("message = %v", body["message"])
	}
	if body["requestId"] == "" || body["requestId"] == nil {
		t.Error("expected requestId in envelope")
	}
	if _, ok := body["stack"]; ok {
		t.Error("stack must not be exposed in production")
	}
}

func TestTransactionNotFoundAndDelete(t *testing.T) {
	r := transactionRouter(&fakeTransactions{})

	w, body := do(r, http.MethodGet, "/transactions/abc", "")
	if w.Code != http.StatusNotFound || body["message"] != "Transaction not found" {
		t.Errorf("get: %d %v", w.Code, body)
	}

	w, _ = do(r, http.MethodDelete, "/transactions/abc", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
}

type fakeBudgets struct {
	BudgetService
	created bool
}

func (f *fakeBudgets) Create(_ context.Context, _ string, req models.BudgetRequest) (models.Budget, error) {
	f.created = true
	return models.Budget{ID: "b1", CategoryID: req.CategoryID, Period: req.Period, AmountLimit: *req.AmountLimit}, nil
}

func TestCreateBudgetValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"ok", `{"category_id":"22222222-2222-2222-2222-222222222222","period":"monthly","amount_limit":100,"start_date":"2025-01-01"}`, http.StatusCreated, ""},
		{"zero limit", `{"category_id":"22222222-2222-2222-2222-222222222222","period":"monthly","amount_limit":0,"start_date":"2025-01-01"}`, http.StatusBadRequest, "amount_limit"},
		{"bad period", `{"category_id":"22222222-2222-2222-2222-222222222222","period":"hourly","amount_limit":10,"start_date":"2025-01-01"}`, http.StatusBadRequest, "period"},
		{"end before start", `{"category_id":"22222222-2222-2222-2222-222222222222","period":"monthly","amount_limit":10,"start_date":"2025-02-01","end_date":"2025-01-01"}`, http.StatusBadRequest, "end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeBudgets{}
			h := &BudgetHandler{Budgets: svc}
			r := newTestRouter(func(r gin.IRoutes) { r.POST("/budgets", h.Create) })

			w, body := do(r, http.MethodPost, "/budgets", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.field != "" {
				fields, _ := body["fields"].(map[string]interface{})
				if _, ok := fields[tt.field]; !ok {
					t.Errorf("expected field %q in %v", tt.field, body)
				}
			}
			if svc.created != (tt.status == http.StatusCreated) {
				t.Errorf("created = %v", svc.created)
			}
		})
	}
}

type fakeNLP struct {
	NLPService
	engine string
}

func (f *fakeNLP) Parse(_ context.Context, _, text, engine string) (models.ParseResponse, error) {
	f.engine = engine
	return models.ParseResponse{
		Candidate: models.ParsedTransaction{Type: models.TypeExpense, Amount: decimal.NewFromInt(50000), Description: text},
		Engine:    models.EngineRule,
	}, nil
}

func TestNLPParse(t *testing.T) {
	svc := &fakeNLP{}
	h := &NLPHandler{NLP: svc}
	r := newTestRouter(func(r gin.IRoutes) { r.POST("/nlp/parse", h.Parse) })

	w, body := do(r, http.MethodPost, "/nlp/parse", `{"text":"ăn phở 50k","engine":"auto"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.engine != "auto" {
		t.Errorf("engine = %q", svc.engine)
	}
	if body["engine"] != models.EngineRule {
		t.Errorf("engine in response = %v", body["engine"])
	}

	w, _ = do(r, http.MethodPost, "/nlp/parse", `{"text":"`+strings.Repeat("a", 501)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("long text: expected 400, got %d", w.Code)
	}

	w, _ = do(r, http.MethodPost, "/nlp/parse", `{"text":"x","engine":"gpt"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown engine: expected 400, got %d", w.Code)
	}
}

type fakeReports struct{ ReportService }

func (fakeReports) Chart(context.Context, string, models.ReportQuery) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func TestReportChartContentType(t *testing.T) {
	h := &ReportHandler{Reports: fakeReports{}}
	r := newTestRouter(func(r gin.IRoutes) { r.GET("/reports/chart", h.Chart) })

	w, _ := do(r, http.MethodGet, "/reports/chart?from=2025-01-01&to=2025-01-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}

	w, body := do(r, http.MethodGet, "/reports/chart?from=01/01/2025", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", w.Code)
	}
	fields, _ := body["fields"].(map[string]interface{})
	if _, ok := fields["from"]; !ok {
		t.Errorf("expected from field in %v", body)
	}
}

type fakeAuth struct {
	refreshed string
}

func (f *fakeAuth) Register(context.Context, models.RegisterRequest) (models.AuthResponse, error) {
	return models.AuthResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}, nil
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	if req.TOTPCode == "" {
		return models.AuthResponse{}, &utils.AppError{
			Status:  http.StatusUnauthorized,
			Message: "Two-factor code required",
			Extra:   map[string]interface{}{"requires_2fa": true},
		}
	}
	return models.AuthResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}, nil
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (models.AuthResponse, error) {
	f.refreshed = token
	return models.AuthResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
}

func (f *fakeAuth) Logout(context.Context, string) error {
	return nil
}

func TestAuthCookies(t *testing.T) {
	svc := &fakeAuth{}
	h := &AuthHandler{Auth: svc}
	r := newTestRouter(func(r gin.IRoutes) {
		r.POST("/auth/register", h.Register)
		r.POST("/auth/login", h.Login)
		r.POST("/auth/refresh", h.Refresh)
	})

	w, _ := do(r, http.MethodPost, "/auth/register", `{"email":"a@b.com","password":"secret1","name":"A"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sawAccess bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AccessTokenCookie && c.Value == "a" && c.HttpOnly {
			sawAccess = true
		}
	}
	if !sawAccess {
		t.Error("expected HttpOnly access_token cookie")
	}

	w, body := do(r, http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"secret1"}`)
	if w.Code != http.StatusUnauthorized || body["requires_2fa"] != true {
		t.Errorf("login without code: %d %v", w.Code, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: "from-cookie"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || svc.refreshed != "from-cookie" {
		t.Errorf("refresh from cookie: %d, token %q", w.Code, svc.refreshed)
	}

	w, body = do(r, http.MethodPost, "/auth/refresh", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("refresh without token: expected 400, got %d %v", w.Code, body)
	}
}

type fakeCategories struct {
	CategoryService
	items map[string]models.Category
	used  map[string]bool
}

func (f *fakeCategories) owned(id string) (models.Category, error) {
	c, ok := f.items[id]
	if !ok {
		return models.Category{}, utils.NotFound("Category not found")
	}
	if c.IsDefault {
		return models.Category{}, utils.Forbidden("Default categories cannot be modified")
	}
	return c, nil
}

func (f *fakeCategories) Update(_ context.Context, _, id string, req models.CategoryRequest) (models.Category, error) {
	c, err := f.owned(id)
	if err != nil {
		return models.Category{}, err
	}
	if c.Type != req.Type && f.used[id] {
		return models.Category{}, utils.Conflict("Category type cannot change while transactions or budgets use it")
	}
	c.Name, c.Type = req.Name, req.Type
	f.items[id] = c
	return c, nil
}

func (f *fakeCategories) Delete(_ context.Context, _, id string) error {
	if _, err := f.owned(id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

func TestCategoryWriteRules(t *testing.T) {
	svc := &fakeCategories{
		items: map[string]models.Category{
			"food":  {ID: "food", Name: "Ăn uống", Type: models.TypeExpense, IsDefault: true},
			"cafe":  {ID: "cafe", Name: "Cà phê", Type: models.TypeExpense},
			"spare": {ID: "spare", Name: "Quà", Type: models.TypeExpense},
		},
		used: map[string]bool{"cafe": true},
	}
	h := &CategoryHandler{Categories: svc}
	r := newTestRouter(func(r gin.IRoutes) {
		r.PUT("/categories/:id", h.Update)
		r.DELETE("/categories/:id", h.Delete)
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"update default", http.MethodPut, "/categories/food", `{"name":"x","type":"expense"}`, http.StatusForbidden},
		{"delete default", http.MethodDelete, "/categories/food", "", http.StatusForbidden},
		{"retype used category", http.MethodPut, "/categories/cafe", `{"name":"Cà phê","type":"income"}`, http.StatusConflict},
		{"rename used category", http.MethodPut, "/categories/cafe", `{"name":"Cà phê sữa","type":"expense"}`, http.StatusOK},
		{"retype unused category", http.MethodPut, "/categories/spare", `{"name":"Quà","type":"income"}`, http.StatusOK},
		{"delete own", http.MethodDelete, "/categories/spare", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(r, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
	if _, ok := svc.items["food"]; !ok {
		t.Error("default category must survive")
	}
	if svc.items["cafe"].Type != models.TypeExpense {
		t.Error("used category must keep its type")
	}
}

func TestWebsocketOriginCheck(t *testing.T) {
	ws := NewWSHandler(quietLogger(), []string{"https://app.example.com"})
	defer ws.Close()
	srv := httptest.NewServer(newTestRouter(func(r gin.IRoutes) { r.GET("/ws", ws.HandleWS) }))
	defer srv.Close()

	tests := []struct {
		name   string
		origin string
		status int
	}{
		{"frontend origin", "https://app.example.com", http.StatusSwitchingProtocols},
		{"no origin header", "", http.StatusSwitchingProtocols},
		{"foreign origin", "https://evil.example.net", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			req.Header.Set("Sec-WebSocket-Version", "13")
			req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}
