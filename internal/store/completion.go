package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	var reviewedAt sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.TaskID, &c.UserID, &c.UserName, &c.UserHouse, &c.Title, &c.Description,
		&c.BeforeImageURL, &c.AfterImageURL, &c.Status, &c.PointsAwarded, &c.SubmittedAt, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		c.ReviewedAt = &reviewedAt.Time
	}
	return &c, nil
}

const completionCols = `id, task_id, user_id, user_name, user_house, title, description, before_image_url, after_image_url, status, points_awarded, submitted_at, reviewed_at`

// Create inserts a pending completion. The caller supplies the id.
func (s *CompletionStore) Create(c *model.TaskCompletion) (*model.TaskCompletion, error) {
	_, err := s.db.Exec(
		`INSERT INTO task_completions (id, task_id, user_id, user_name, user_house, title, description,
		   before_image_url, after_image_url, status, points_awarded, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		c.ID, c.TaskID, c.UserID, c.UserName, c.UserHouse, c.Title, c.Description,
		c.BeforeImageURL, c.AfterImageURL, model.CompletionPending, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	return s.GetByID(c.ID)
}

func (s *CompletionStore) GetByID(id string) (*model.TaskCompletion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// ListPending returns completions awaiting review, oldest first.
func (s *CompletionStore) ListPending() ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE status = ? ORDER BY submitted_at ASC, id`,
		model.CompletionPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending completions: %w", err)
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// ListByUser returns a user's completions, most recent first.
func (s *CompletionStore) ListByUser(userID string) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE user_id = ? ORDER BY submitted_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions by user: %w", err)
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// Review records a decision on a completion. The current status is not checked.
func (s *CompletionStore) Review(id string, status model.CompletionStatus, points int, reviewedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE task_completions SET status = ?, points_awarded = ?, reviewed_at = ? WHERE id = ?`,
		status, points, reviewedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("review completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountApproved returns the platform-wide number of approved completions.
func (s *CompletionStore) CountApproved() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_completions WHERE status = ?`, model.CompletionApproved,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count approved completions: %w", err)
	}
	return n, nil
}

func scanCompletions(rows *sql.Rows) ([]model.TaskCompletion, error) {
	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
