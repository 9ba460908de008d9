package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/hade267/doan-VND-sub000/utils"
)

func InitDB(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// defaultCategories are shared by every user (user_id NULL).
var defaultCategories = []struct {
	Name, Type, Icon, Color string
}{
	{"Ăn uống", "expense", "utensils", "#f97316"},
	{"Di chuyển", "expense", "car", "#3b82f6"},
	{"Mua sắm", "expense", "shopping-bag", "#ec4899"},
	{"Hóa đơn", "expense", "receipt", "#eab308"},
	{"Giải trí", "expense", "film", "#8b5cf6"},
	{"Sức khỏe", "expense", "heart-pulse", "#ef4444"},
	{"Giáo dục", "expense", "book", "#14b8a6"},
	{"Khác", "expense", "circle", "#6b7280"},
	{"Lương", "income", "wallet", "#22c55e"},
	{"Thu nhập khác", "income", "coins", "#84cc16"},
	{"Khác", "income", "circle", "#6b7280"},
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			totp_secret TEXT,
			totp_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token VARCHAR(500) UNIQUE NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			type VARCHAR(10) NOT NULL CHECK (type IN ('income', 'expense')),
			icon VARCHAR(50),
			color VARCHAR(20),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE NULLS NOT DISTINCT (user_id, name, type)
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category_id UUID REFERENCES categories(id) ON DELETE SET NULL,
			type VARCHAR(10) NOT NULL CHECK (type IN ('income', 'expense')),
			amount NUMERIC(15,2) NOT NULL CHECK (amount > 0),
			transaction_date DATE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS budgets (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category_id UUID NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			period VARCHAR(10) NOT NULL CHECK (period IN ('daily', 'weekly', 'monthly', 'yearly')),
			amount_limit NUMERIC(15,2) NOT NULL CHECK (amount_limit > 0),
			start_date DATE NOT NULL,
			end_date DATE CHECK (end_date IS NULL OR end_date >= start_date),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, category_id, period, start_date)
		)`,

		`CREATE TABLE IF NOT EXISTS nlp_logs (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			transaction_id UUID REFERENCES transactions(id) ON DELETE SET NULL,
			input_text TEXT NOT NULL,
			parsed_json JSONB,
			is_success BOOLEAN NOT NULL DEFAULT FALSE,
			corrections JSONB,
			engine VARCHAR(10) NOT NULL DEFAULT 'rule' CHECK (engine IN ('rule', 'ai')),
			confidence NUMERIC(4,3),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS nlp_config (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			config JSONB NOT NULL,
			updated_by UUID REFERENCES users(id) ON DELETE SET NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS nlp_ai_usage (
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			usage_date DATE NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, usage_date)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_user_id ON categories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, transaction_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_category_date ON transactions(category_id, transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_budgets_user_category ON budgets(user_id, category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nlp_logs_user_created ON nlp_logs(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return utils.WithTransaction(ctx, db, func(tx *sql.Tx) error {
		for _, c := range defaultCategories {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO categories (user_id, name, type, icon, color)
				VALUES (NULL, $1, $2, $3, $4)
				ON CONFLICT (user_id, name, type) DO NOTHING`,
				c.Name, c.Type, c.Icon, c.Color); err != nil {
				return fmt.Errorf("failed to seed category %s: %w", c.Name, err)
			}
		}
		return nil
	})
}
