package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// EmailService sends budget alerts through the Resend HTTP API.
type EmailService struct {
	apiKey      string
	fromEmail   string
	frontendURL string
	endpoint    string
	users       UserLookup
	httpClient  *http.Client
}

func NewEmailService(apiKey, fromEmail, frontendURL string, users UserLookup) *EmailService {
	return &EmailService{
		apiKey:      apiKey,
		fromEmail:   fromEmail,
		frontendURL: frontendURL,
		endpoint:    "https://api.resend.com/emails",
		users:       users,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *EmailService) Enabled() bool {
	return s != nil && s.apiKey != ""
}

func (s *EmailService) SendBudgetAlert(ctx context.Context, userID string, alert models.BudgetAlert) error {
	if !s.Enabled() {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #e74c3c;">Ngân sách "%s" đã vượt hạn mức</h2>
        <p>Xin chào %s,</p>
        <p>Chi tiêu từ %s đến %s: <strong>%s</strong> / %s (%.1f%%).</p>
        <a href="%s/budgets" style="display: inline-block; background: #667eea; color: white; padding: 12px 24px; text-decoration: none; border-radius: 8px;">Xem ngân sách</a>
    </div>
</body>
</html>
	`,
		html.EscapeString(alert.CategoryName),
		html.EscapeString(user.Name),
		alert.WindowStart.Format(models.DateLayout),
		alert.WindowEnd.Format(models.DateLayout),
		alert.Projected.StringFixed(0),
		alert.Limit.StringFixed(0),
		alert.Percentage,
		s.frontendURL,
	)

	payload := map[string]interface{}{
		"from":    s.fromEmail,
		"to":      []string{user.Email},
		"subject": fmt.Sprintf("Cảnh báo: vượt ngân sách %s", alert.CategoryName),
		"html":    htmlBody,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send email: status %d", resp.StatusCode)
	}

	return nil
}
