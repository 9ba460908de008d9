package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
	"github.com/hade267/doan-VND-sub000/utils"

	"github.com/shopspring/decimal"
)

const (
	warnAIFailed    = "AI engine unavailable, rule-based result used"
	warnAIQuota     = "AI quota exhausted for today, rule-based result used"
	warnAIDisabled  = "AI engine not configured, rule-based result used"
	warnNoAmount    = "No amount found in text"
	warnLogNotSaved = "Parse log could not be saved"
)

type AIEngine interface {
	Enabled() bool
	Parse(ctx context.Context, text string, cfg nlp.Config, now time.Time) (nlp.Candidate, error)
}

type NlpLogRepository interface {
	Create(ctx context.Context, l models.NlpLog) (string, error)
	Link(ctx context.Context, userID, logID, transactionID string, corrections json.RawMessage) error
	SetCorrections(ctx context.Context, userID, logID string, corrections json.RawMessage) (models.NlpLog, error)
	List(ctx context.Context, userID string, q models.NlpLogQuery) ([]models.NlpLog, int, error)
}

type QuotaRepository interface {
	Used(ctx context.Context, userID string, day time.Time) (int, error)
	Reserve(ctx context.Context, userID string, day time.Time, limit int) (bool, error)
	Release(ctx context.Context, userID string, day time.Time) error
}

type TransactionCreator interface {
	Create(ctx context.Context, userID string, req models.TransactionRequest) (models.TransactionResult, error)
}

type NLPOptions struct {
	DailyQuota    int
	AutoThreshold float64
	Location      *time.Location
}

type NLPService struct {
	configs      *nlp.ConfigCache
	cache        *nlp.ResultCache
	ai           AIEngine
	quota        QuotaRepository
	logs         NlpLogRepository
	categories   CategoryReader
	transactions TransactionCreator
	opts         NLPOptions
	now          func() time.Time
	logger       *slog.Logger
}

func NewNLPService(configs *nlp.ConfigCache, cache *nlp.ResultCache, ai AIEngine, quota QuotaRepository,
	logs NlpLogRepository, categories CategoryReader, transactions TransactionCreator,
	opts NLPOptions, logger *slog.Logger) *NLPService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &NLPService{
		configs:      configs,
		cache:        cache,
		ai:           ai,
		quota:        quota,
		logs:         logs,
		categories:   categories,
		transactions: transactions,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

func (s *NLPService) today() time.Time {
	return s.now().In(s.opts.Location)
}

func (s *NLPService) aiEnabled() bool {
	return s.ai != nil && s.ai.Enabled()
}

// Parse runs the requested engine and records the attempt in nlp_logs.
func (s *NLPService) Parse(ctx context.Context, userID, text, engine string) (models.ParseResponse, error) {
	parser, err := s.configs.Parser(ctx)
	if err != nil {
		return models.ParseResponse{}, utils.Internal(err)
	}

	now := s.today()
	candidate := parser.Parse(text, now)
	used := models.EngineRule
	cached := false
	var warnings []string

	switch engine {
	case models.EngineAI:
		if !s.aiEnabled() {
			return models.ParseResponse{}, utils.BadRequest("AI engine is not configured")
		}
		if hit, ok := s.cache.Get(userID, text); ok {
			candidate, used, cached = hit, models.EngineAI, true
			break
		}
		reserved, err := s.reserve(ctx, userID, now)
		if err != nil {
			return models.ParseResponse{}, utils.Internal(err)
		}
		if !reserved {
			return models.ParseResponse{}, utils.TooManyRequests("Daily AI parsing quota exhausted")
		}
		if c, ok := s.callAI(ctx, userID, text, parser.Config(), now); ok {
			candidate, used = c, models.EngineAI
		} else {
			warnings = append(warnings, warnAIFailed)
		}

	case models.EngineAuto:
		if candidate.Confidence.Mean() >= s.opts.AutoThreshold {
			break
		}
		if !s.aiEnabled() {
			warnings = append(warnings, warnAIDisabled)
			break
		}
		if hit, ok := s.cache.Get(userID, text); ok {
			candidate, used, cached = hit, models.EngineAI, true
			break
		}
		reserved, err := s.reserve(ctx, userID, now)
		if err != nil {
			return models.ParseResponse{}, utils.Internal(err)
		}
		if !reserved {
			warnings = append(warnings, warnAIQuota)
			break
		}
		if c, ok := s.callAI(ctx, userID, text, parser.Config(), now); ok {
			candidate, used = c, models.EngineAI
		} else {
			warnings = append(warnings, warnAIFailed)
		}
	}

	if !candidate.HasAmount() {
		warnings = append(warnings, warnNoAmount)
	}

	parsed, err := s.toParsed(ctx, userID, candidate)
	if err != nil {
		return models.ParseResponse{}, err
	}

	logID, err := s.record(ctx, userID, text, used, parsed, candidate)
	if err != nil {
		s.logger.Warn("nlp log insert failed", "user_id", userID, "error", err)
		warnings = append(warnings, warnLogNotSaved)
	}

	if warnings == nil {
		warnings = []string{}
	}
	return models.ParseResponse{
		Candidate: parsed,
		Engine:    used,
		LogID:     logID,
		Cached:    cached,
		Warnings:  warnings,
	}, nil
}

// callAI makes one model call against a reserved quota unit. The unit is
// released when the call fails, so only successful calls consume quota.
func (s *NLPService) callAI(ctx context.Context, userID, text string, cfg nlp.Config, now time.Time) (nlp.Candidate, bool) {
	c, err := s.ai.Parse(ctx, text, cfg, now)
	if err != nil {
		s.logger.Warn("AI parse failed, falling back to rules", "user_id", userID, "error", err)
		if err := s.quota.Release(ctx, userID, now); err != nil {
			s.logger.Error("AI quota release failed", "user_id", userID, "error", err)
		}
		return nlp.Candidate{}, false
	}
	s.cache.Set(userID, text, c)
	return c, true
}

func (s *NLPService) reserve(ctx context.Context, userID string, now time.Time) (bool, error) {
	ok, err := s.quota.Reserve(ctx, userID, now, s.opts.DailyQuota)
	if err != nil {
		return false, fmt.Errorf("reserve AI quota: %w", err)
	}
	return ok, nil
}

// toParsed converts a candidate and resolves its category name to one of
// the user's categories of the same type.
func (s *NLPService) toParsed(ctx context.Context, userID string, c nlp.Candidate) (models.ParsedTransaction, error) {
	p := models.ParsedTransaction{
		Type:        c.Type,
		Amount:      decimal.NewFromFloat(c.Amount).Round(2),
		Category:    c.Category,
		Date:        models.NewDate(c.Date),
		Description: c.Description,
		Confidence: models.Confidence{
			Type:     c.Confidence.Type,
			Amount:   c.Confidence.Amount,
			Category: c.Confidence.Category,
		},
	}
	id, err := s.resolveCategory(ctx, userID, c.Category, c.Type)
	if err != nil {
		return p, err
	}
	p.CategoryID = id
	return p, nil
}

func (s *NLPService) resolveCategory(ctx context.Context, userID, name, categoryType string) (*string, error) {
	cats, err := s.categories.List(ctx, userID, categoryType)
	if err != nil {
		return nil, utils.Internal(fmt.Errorf("list categories: %w", err))
	}
	want := nlp.Normalize(name)
	var fallback *string
	for _, cat := range cats {
		if nlp.Normalize(cat.Name) != want {
			continue
		}
		id := cat.ID
		// A user's own category wins over a default with the same name.
		if !cat.IsDefault {
			return &id, nil
		}
		if fallback == nil {
			fallback = &id
		}
	}
	return fallback, nil
}

func (s *NLPService) record(ctx context.Context, userID, text, engine string, parsed models.ParsedTransaction, c nlp.Candidate) (string, error) {
	raw, err := json.Marshal(parsed)
	if err != nil {
		return "", err
	}
	confidence := c.Confidence.Mean()
	return s.logs.Create(ctx, models.NlpLog{
		UserID:     userID,
		InputText:  text,
		ParsedJSON: raw,
		IsSuccess:  c.HasAmount(),
		Engine:     engine,
		Confidence: &confidence,
	})
}

type correction struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// CreateTransaction parses text, applies explicit overrides and creates the
// transaction through the regular flow so budget alerts fire.
func (s *NLPService) CreateTransaction(ctx context.Context, userID string, req models.NLPTransactionRequest) (models.NLPTransactionResponse, error) {
	parse, err := s.Parse(ctx, userID, req.Text, req.Engine)
	if err != nil {
		return models.NLPTransactionResponse{}, err
	}
	p := parse.Candidate

	corrections := map[string]correction{}
	txReq := models.TransactionRequest{
		Type:        p.Type,
		CategoryID:  p.CategoryID,
		Description: p.Description,
	}
	amount := p.Amount
	date := p.Date

	if req.Type != nil && *req.Type != p.Type {
		corrections["type"] = correction{p.Type, *req.Type}
		txReq.Type = *req.Type
		if req.CategoryID == nil {
			txReq.CategoryID, err = s.resolveCategory(ctx, userID, p.Category, txReq.Type)
			if err != nil {
				return models.NLPTransactionResponse{}, err
			}
		}
	}
	if req.Amount != nil && !req.Amount.Equal(p.Amount) {
		corrections["amount"] = correction{p.Amount, *req.Amount}
		amount = *req.Amount
	}
	if req.Date != nil && !req.Date.Equal(p.Date.Time) {
		corrections["date"] = correction{p.Date, *req.Date}
		date = *req.Date
	}
	if req.CategoryID != nil && (p.CategoryID == nil || *req.CategoryID != *p.CategoryID) {
		corrections["category_id"] = correction{p.CategoryID, *req.CategoryID}
		txReq.CategoryID = req.CategoryID
	}
	if req.Description != nil && *req.Description != p.Description {
		corrections["description"] = correction{p.Description, *req.Description}
		txReq.Description = *req.Description
	}

	if !amount.IsPositive() {
		return models.NLPTransactionResponse{}, utils.ValidationError(map[string]string{
			"amount": "could not detect an amount in the text, provide one explicitly",
		})
	}
	txReq.Amount = &amount
	txReq.Date = &date

	result, err := s.transactions.Create(ctx, userID, txReq)
	if err != nil {
		return models.NLPTransactionResponse{}, err
	}

	if parse.LogID != "" {
		var raw json.RawMessage
		if len(corrections) > 0 {
			if raw, err = json.Marshal(corrections); err != nil {
				return models.NLPTransactionResponse{}, utils.Internal(err)
			}
		}
		if err := s.logs.Link(ctx, userID, parse.LogID, result.Transaction.ID, raw); err != nil {
			s.logger.Warn("nlp log link failed", "log_id", parse.LogID, "error", err)
		}
	}

	return models.NLPTransactionResponse{TransactionResult: result, Parse: parse}, nil
}

func (s *NLPService) AddCorrections(ctx context.Context, userID, logID string, corrections map[string]interface{}) (models.NlpLog, error) {
	if len(corrections) == 0 {
		return models.NlpLog{}, utils.ValidationError(map[string]string{"corrections": "must not be empty"})
	}
	raw, err := json.Marshal(corrections)
	if err != nil {
		return models.NlpLog{}, utils.BadRequest("Invalid corrections")
	}
	l, err := s.logs.SetCorrections(ctx, userID, logID, raw)
	return l, utils.FromDBError(err, "NLP log not found")
}

// Logs lists logs of one user, or of everybody when userID is empty.
func (s *NLPService) Logs(ctx context.Context, userID string, q models.NlpLogQuery) (models.Page[models.NlpLog], error) {
	logs, total, err := s.logs.List(ctx, userID, q)
	if err != nil {
		return models.Page[models.NlpLog]{}, utils.FromDBError(err, "NLP log not found")
	}
	q.Normalize()
	return models.Page[models.NlpLog]{Data: logs, Pagination: models.NewPagination(q.PageQuery, total)}, nil
}

func (s *NLPService) Quota(ctx context.Context, userID string) (models.QuotaResponse, error) {
	now := s.today()
	used, err := s.quota.Used(ctx, userID, now)
	if err != nil {
		return models.QuotaResponse{}, utils.Internal(err)
	}
	remaining := s.opts.DailyQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return models.QuotaResponse{
		AIEnabled: s.aiEnabled(),
		Limit:     s.opts.DailyQuota,
		Used:      used,
		Remaining: remaining,
		Date:      now.Format(models.DateLayout),
	}, nil
}

// ============================================================================
// ADMIN CONFIG
// ============================================================================

type NlpConfigRepository interface {
	Load(ctx context.Context) (nlp.Config, bool, error)
	Save(ctx context.Context, cfg nlp.Config, updatedBy string) error
}

// NLPConfigService reads and replaces the keyword config used by the parser.
type NLPConfigService struct {
	store NlpConfigRepository
	cache *nlp.ConfigCache
}

func NewNLPConfigService(store NlpConfigRepository, cache *nlp.ConfigCache) *NLPConfigService {
	return &NLPConfigService{store: store, cache: cache}
}

// Current returns the config the parser is using right now.
func (s *NLPConfigService) Current(ctx context.Context) (nlp.Config, error) {
	p, err := s.cache.Parser(ctx)
	if err != nil {
		return nlp.Config{}, utils.Internal(err)
	}
	return p.Config(), nil
}

func (s *NLPConfigService) Replace(ctx context.Context, cfg nlp.Config, updatedBy string) (nlp.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nlp.Config{}, &utils.AppError{
			Status:  http.StatusBadRequest,
			Message: "Invalid NLP configuration",
			Fields:  map[string]string{"config": err.Error()},
		}
	}
	if err := s.store.Save(ctx, cfg, updatedBy); err != nil {
		return nlp.Config{}, utils.Internal(fmt.Errorf("save nlp config: %w", err))
	}
	s.cache.Invalidate()
	return cfg, nil
}

// NewConfigLoader builds the ConfigCache loader: database row first, then
// the JSON file at path, then the embedded default.
func NewConfigLoader(store NlpConfigRepository, path string) nlp.Loader {
	return func(ctx context.Context) (nlp.Config, error) {
		cfg, found, err := store.Load(ctx)
		if err != nil {
			return nlp.Config{}, err
		}
		if found {
			return cfg, nil
		}
		if path != "" {
			cfg, err := nlp.LoadConfigFile(path)
			if err == nil {
				return cfg, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nlp.Config{}, err
			}
		}
		return nlp.DefaultConfig(), nil
	}
}
