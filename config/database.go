package config

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func InitDB() (*sql.DB, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
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

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			totp_secret VARCHAR(255),
			totp_enabled BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			email VARCHAR(255),
			full_name VARCHAR(255),
			monthly_income NUMERIC(12,2) DEFAULT 0,
			budget_allocations JSONB DEFAULT '{}',
			onboarding_completed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS expenses (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			amount NUMERIC(12,2) NOT NULL,
			category VARCHAR(100) NOT NULL,
			date DATE NOT NULL,
			description TEXT,
			is_recurring BOOLEAN DEFAULT FALSE,
			is_necessary BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			goal_title VARCHAR(255) NOT NULL,
			target_amount NUMERIC(12,2) NOT NULL,
			saved_amount NUMERIC(12,2) DEFAULT 0,
			target_date DATE,
			is_completed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ai_suggestions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID REFERENCES users(id) ON DELETE CASCADE,
			suggestion_text TEXT NOT NULL,
			type VARCHAR(50) NOT NULL,
			emoji_reaction VARCHAR(16),
			is_saved BOOLEAN DEFAULT FALSE,
			generated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_expenses_user_id ON expenses(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user_id ON goals(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_suggestions_user_id ON ai_suggestions(user_id)`,

		// Every mutated row notifies entity_changes with "table|user". The
		// listener fans that out to the subscribed collections. Profiles key
		// on id because the row IS the user.
		`CREATE OR REPLACE FUNCTION notify_entity_change() RETURNS trigger AS $$
		DECLARE
			row_record RECORD;
			uid UUID;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				row_record := OLD;
			ELSE
				row_record := NEW;
			END IF;

			IF TG_TABLE_NAME = 'profiles' THEN
				uid := row_record.id;
			ELSE
				uid := row_record.user_id;
			END IF;

			PERFORM pg_notify('entity_changes', TG_TABLE_NAME || '|' || uid::text);
			RETURN row_record;
		END;
		$$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS expenses_notify ON expenses`,
		`CREATE TRIGGER expenses_notify AFTER INSERT OR UPDATE OR DELETE ON expenses
			FOR EACH ROW EXECUTE FUNCTION notify_entity_change()`,

		`DROP TRIGGER IF EXISTS goals_notify ON goals`,
		`CREATE TRIGGER goals_notify AFTER INSERT OR UPDATE OR DELETE ON goals
			FOR EACH ROW EXECUTE FUNCTION notify_entity_change()`,

		`DROP TRIGGER IF EXISTS ai_suggestions_notify ON ai_suggestions`,
		`CREATE TRIGGER ai_suggestions_notify AFTER INSERT OR UPDATE OR DELETE ON ai_suggestions
			FOR EACH ROW EXECUTE FUNCTION notify_entity_change()`,

		`DROP TRIGGER IF EXISTS profiles_notify ON profiles`,
		`CREATE TRIGGER profiles_notify AFTER INSERT OR UPDATE OR DELETE ON profiles
			FOR EACH ROW EXECUTE FUNCTION notify_entity_change()`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
