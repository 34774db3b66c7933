package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.CleaningTask, error) {
	var t model.CleaningTask
	var areaType, areaGeoJSON string
	var lastCleaned sql.NullTime
	err := scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.Location.Latitude, &t.Location.Longitude,
		&areaType, &areaGeoJSON, &t.RequestedBy, &t.Status, &t.CreatedAt, &lastCleaned,
	)
	if err != nil {
		return nil, err
	}
	if areaType != "" {
		t.Area = &model.Area{Type: model.AreaType(areaType), GeoJSON: areaGeoJSON}
	}
	if lastCleaned.Valid {
		t.LastCleanedAt = &lastCleaned.Time
	}
	return &t, nil
}

const taskCols = `id, title, description, latitude, longitude, area_type, area_geojson, requested_by, status, created_at, last_cleaned_at`

// Create inserts a pending cleaning task. The caller supplies the id.
func (s *TaskStore) Create(t *model.CleaningTask) (*model.CleaningTask, error) {
	var areaType, areaGeoJSON string
	if t.Area != nil {
		areaType = string(t.Area.Type)
		areaGeoJSON = t.Area.GeoJSON
	}
	_, err := s.db.Exec(
		`INSERT INTO cleaning_tasks (id, title, description, latitude, longitude, area_type, area_geojson, requested_by, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Location.Latitude, t.Location.Longitude,
		areaType, areaGeoJSON, t.RequestedBy, model.TaskPending, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert cleaning task: %w", err)
	}
	return s.GetByID(t.ID)
}

func (s *TaskStore) GetByID(id string) (*model.CleaningTask, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM cleaning_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cleaning task: %w", err)
	}
	return t, nil
}

// ListOpen returns tasks that have not been approved, newest first.
func (s *TaskStore) ListOpen() ([]model.CleaningTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM cleaning_tasks WHERE status <> ? ORDER BY created_at DESC, id`,
		model.TaskApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.CleaningTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cleaning task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// MarkApproved sets the task status to approved and records when it was cleaned.
func (s *TaskStore) MarkApproved(id string, cleanedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE cleaning_tasks SET status = ?, last_cleaned_at = ? WHERE id = ?`,
		model.TaskApproved, cleanedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark task approved: %w", err)
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
