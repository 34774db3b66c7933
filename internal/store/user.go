package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var isAdmin int
	err := scanner.Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.House, &u.Points, &u.Tasks,
		&isAdmin, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	return &u, nil
}

const userCols = `id, name, email, mobile, house, points, tasks, is_admin, password_hash, created_at, updated_at`

// Create inserts a user with zero points and tasks. The caller supplies the id.
func (s *UserStore) Create(u *model.User) (*model.User, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, email, mobile, house, is_admin, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Mobile, u.House, boolToInt(u.IsAdmin), u.PasswordHash, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(u.ID)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// AwardPoints adds points to a user's total and counts one more completed task.
func (s *UserStore) AwardPoints(id string, points int) error {
	result, err := s.db.Exec(
		`UPDATE users SET points = points + ?, tasks = tasks + 1, updated_at = ? WHERE id = ?`,
		points, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
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

func (s *UserStore) SetAdmin(id string, isAdmin bool) error {
	result, err := s.db.Exec(
		`UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?`,
		boolToInt(isAdmin), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
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

func (s *UserStore) SetPasswordHash(id, hash string) error {
	result, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
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

// RankedMembers returns the non-admin members of a house ordered by points
// descending, ties broken by id. A limit of zero or less returns everyone.
func (s *UserStore) RankedMembers(house, adminEmail string, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users
		 WHERE house = ? AND is_admin = 0 AND email <> ?
		 ORDER BY points DESC, id ASC LIMIT ?`,
		house, adminEmail, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ranked members: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListNonAdmin returns every user who is not the admin account.
func (s *UserStore) ListNonAdmin(adminEmail string) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE is_admin = 0 AND email <> ? ORDER BY id`,
		adminEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("list non-admin users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
