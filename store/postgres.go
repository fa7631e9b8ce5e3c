package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budget-sync/engine"
	"budget-sync/models"
	"budget-sync/realtime"
)

// Postgres-backed stores, one per synced entity type. Each implements
// engine.Source for its model: a per-user snapshot query plus a mutate
// switch. After every accepted mutation the local notifier is published;
// the database triggers additionally emit NOTIFY for other instances.

type pgBase struct {
	db       *sql.DB
	notifier *realtime.Notifier
}

func (b pgBase) changed(entityType, userID string) {
	if b.notifier != nil {
		b.notifier.Publish(entityType, userID)
	}
}

// ----------------------------------------------------------------------------
// Expenses
// ----------------------------------------------------------------------------

type ExpenseStore struct {
	pgBase
}

func NewExpenseStore(db *sql.DB, notifier *realtime.Notifier) *ExpenseStore {
	return &ExpenseStore{pgBase{db: db, notifier: notifier}}
}

func (s *ExpenseStore) Snapshot(ctx context.Context, userID string) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, category, date, COALESCE(description, ''), is_recurring, is_necessary, created_at
		FROM expenses
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Category, &e.Date,
			&e.Description, &e.IsRecurring, &e.IsNecessary, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *ExpenseStore) Mutate(ctx context.Context, op engine.Mutation[models.Expense]) (models.Expense, error) {
	var out models.Expense

	switch op.Kind {
	case engine.MutationInsert:
		e := op.Payload
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.UserID = op.UserID
		e.CreatedAt = time.Now()

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO expenses (id, user_id, amount, category, date, description, is_recurring, is_necessary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.ID, e.UserID, e.Amount, e.Category, e.Date, e.Description, e.IsRecurring, e.IsNecessary, e.CreatedAt)
		if err != nil {
			return out, fmt.Errorf("failed to insert expense: %w", err)
		}
		out = e

	case engine.MutationUpdate:
		e := op.Payload
		res, err := s.db.ExecContext(ctx, `
			UPDATE expenses
			SET amount = $1, category = $2, date = $3, description = $4, is_recurring = $5, is_necessary = $6
			WHERE id = $7 AND user_id = $8
		`, e.Amount, e.Category, e.Date, e.Description, e.IsRecurring, e.IsNecessary, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to update expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}
		e.ID = op.ID
		e.UserID = op.UserID
		out = e

	case engine.MutationDelete:
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM expenses WHERE id = $1 AND user_id = $2`, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to delete expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}

	default:
		return out, fmt.Errorf("unsupported mutation kind %d", op.Kind)
	}

	s.changed(models.EntityExpenses, op.UserID)
	return out, nil
}

// ----------------------------------------------------------------------------
// Goals
// ----------------------------------------------------------------------------

type GoalStore struct {
	pgBase
}

func NewGoalStore(db *sql.DB, notifier *realtime.Notifier) *GoalStore {
	return &GoalStore{pgBase{db: db, notifier: notifier}}
}

func (s *GoalStore) Snapshot(ctx context.Context, userID string) ([]models.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, goal_title, target_amount, saved_amount, target_date, is_completed, created_at
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		var targetDate sql.NullTime
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.TargetAmount, &g.SavedAmount,
			&targetDate, &g.IsCompleted, &g.CreatedAt); err != nil {
			return nil, err
		}
		if targetDate.Valid {
			g.TargetDate = &targetDate.Time
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *GoalStore) Mutate(ctx context.Context, op engine.Mutation[models.Goal]) (models.Goal, error) {
	var out models.Goal

	switch op.Kind {
	case engine.MutationInsert:
		g := op.Payload
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
		g.UserID = op.UserID
		g.CreatedAt = time.Now()

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO goals (id, user_id, goal_title, target_amount, saved_amount, target_date, is_completed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, g.ID, g.UserID, g.Title, g.TargetAmount, g.SavedAmount, nullTime(g.TargetDate), g.IsCompleted, g.CreatedAt)
		if err != nil {
			return out, fmt.Errorf("failed to insert goal: %w", err)
		}
		out = g

	case engine.MutationUpdate:
		g := op.Payload
		res, err := s.db.ExecContext(ctx, `
			UPDATE goals
			SET goal_title = $1, target_amount = $2, saved_amount = $3, target_date = $4, is_completed = $5
			WHERE id = $6 AND user_id = $7
		`, g.Title, g.TargetAmount, g.SavedAmount, nullTime(g.TargetDate), g.IsCompleted, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to update goal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}
		g.ID = op.ID
		g.UserID = op.UserID
		out = g

	case engine.MutationDelete:
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM goals WHERE id = $1 AND user_id = $2`, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to delete goal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}

	default:
		return out, fmt.Errorf("unsupported mutation kind %d", op.Kind)
	}

	s.changed(models.EntityGoals, op.UserID)
	return out, nil
}

// ----------------------------------------------------------------------------
// AI suggestions
// ----------------------------------------------------------------------------

type SuggestionStore struct {
	pgBase
}

func NewSuggestionStore(db *sql.DB, notifier *realtime.Notifier) *SuggestionStore {
	return &SuggestionStore{pgBase{db: db, notifier: notifier}}
}

// Snapshot keeps only the ten most recent suggestions, newest first,
// matching what the dashboard displays.
func (s *SuggestionStore) Snapshot(ctx context.Context, userID string) ([]models.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, suggestion_text, type, COALESCE(emoji_reaction, ''), is_saved, generated_at
		FROM ai_suggestions
		WHERE user_id = $1
		ORDER BY generated_at DESC
		LIMIT 10
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []models.Suggestion
	for rows.Next() {
		var sg models.Suggestion
		if err := rows.Scan(&sg.ID, &sg.UserID, &sg.Text, &sg.Type, &sg.Emoji, &sg.IsSaved, &sg.GeneratedAt); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

func (s *SuggestionStore) Mutate(ctx context.Context, op engine.Mutation[models.Suggestion]) (models.Suggestion, error) {
	var out models.Suggestion

	switch op.Kind {
	case engine.MutationInsert:
		sg := op.Payload
		if sg.ID == "" {
			sg.ID = uuid.New().String()
		}
		sg.UserID = op.UserID
		if sg.GeneratedAt.IsZero() {
			sg.GeneratedAt = time.Now()
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO ai_suggestions (id, user_id, suggestion_text, type, emoji_reaction, is_saved, generated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, sg.ID, sg.UserID, sg.Text, sg.Type, sg.Emoji, sg.IsSaved, sg.GeneratedAt)
		if err != nil {
			return out, fmt.Errorf("failed to insert suggestion: %w", err)
		}
		out = sg

	case engine.MutationUpdate:
		// Suggestions are immutable except for the saved flag.
		res, err := s.db.ExecContext(ctx, `
			UPDATE ai_suggestions SET is_saved = $1 WHERE id = $2 AND user_id = $3
		`, op.Payload.IsSaved, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to update suggestion: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}
		out = op.Payload
		out.ID = op.ID
		out.UserID = op.UserID

	case engine.MutationDelete:
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM ai_suggestions WHERE id = $1 AND user_id = $2`, op.ID, op.UserID)
		if err != nil {
			return out, fmt.Errorf("failed to delete suggestion: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return out, sql.ErrNoRows
		}

	default:
		return out, fmt.Errorf("unsupported mutation kind %d", op.Kind)
	}

	s.changed(models.EntitySuggestions, op.UserID)
	return out, nil
}

// PruneStale deletes unsaved suggestions older than the retention window.
func (s *SuggestionStore) PruneStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ai_suggestions WHERE is_saved = FALSE AND generated_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ----------------------------------------------------------------------------
// Profile
// ----------------------------------------------------------------------------

// ProfileStore treats the profile as a single-row collection so it rides the
// same sync machinery as the list entities.
type ProfileStore struct {
	pgBase
}

func NewProfileStore(db *sql.DB, notifier *realtime.Notifier) *ProfileStore {
	return &ProfileStore{pgBase{db: db, notifier: notifier}}
}

func (s *ProfileStore) Snapshot(ctx context.Context, userID string) ([]models.Profile, error) {
	var p models.Profile
	var allocations []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(monthly_income, 0),
		       budget_allocations, onboarding_completed, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Email, &p.FullName, &p.MonthlyIncome,
		&allocations, &p.OnboardingCompleted, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	if len(allocations) > 0 {
		if err := json.Unmarshal(allocations, &p.BudgetAllocations); err != nil {
			return nil, fmt.Errorf("malformed budget allocations: %w", err)
		}
	}
	return []models.Profile{p}, nil
}

func (s *ProfileStore) Mutate(ctx context.Context, op engine.Mutation[models.Profile]) (models.Profile, error) {
	var out models.Profile
	if op.Kind != engine.MutationUpdate {
		return out, fmt.Errorf("profile supports update mutations only")
	}

	p := op.Payload
	allocations, err := json.Marshal(p.BudgetAllocations)
	if err != nil {
		return out, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = $1, monthly_income = $2, budget_allocations = $3,
		    onboarding_completed = $4, updated_at = NOW()
		WHERE id = $5
	`, p.FullName, p.MonthlyIncome, allocations, p.OnboardingCompleted, op.UserID)
	if err != nil {
		return out, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return out, sql.ErrNoRows
	}

	s.changed(models.EntityProfile, op.UserID)
	p.ID = op.UserID
	return p, nil
}

// CreateProfile inserts the initial profile row at signup.
func (s *ProfileStore) CreateProfile(ctx context.Context, userID, email, fullName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, budget_allocations, onboarding_completed, created_at, updated_at)
		VALUES ($1, $2, $3, '{}', FALSE, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, userID, email, fullName)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	s.changed(models.EntityProfile, userID)
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
