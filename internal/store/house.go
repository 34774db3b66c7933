package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

type HouseStore struct {
	db *sql.DB
}

func NewHouseStore(db *sql.DB) *HouseStore {
	return &HouseStore{db: db}
}

func scanHouse(scanner interface{ Scan(...any) error }) (*model.House, error) {
	var h model.House
	err := scanner.Scan(&h.ID, &h.Name, &h.Points, &h.MemberCount, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const houseCols = `id, name, points, member_count, updated_at`

// HouseAggregate is the recomputed state of one house.
type HouseAggregate struct {
	ID          string
	Name        string
	Points      int
	MemberCount int
}

func (s *HouseStore) GetByID(id string) (*model.House, error) {
	row := s.db.QueryRow(`SELECT `+houseCols+` FROM houses WHERE id = ?`, id)
	h, err := scanHouse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	return h, nil
}

// Create inserts a house row with zero points. It reports whether a row was
// written; an existing house is left untouched.
func (s *HouseStore) Create(id, name string, memberCount int) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO houses (id, name, points, member_count, updated_at) VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, name, memberCount, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert house: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns every stored house in id order.
func (s *HouseStore) List() ([]model.House, error) {
	rows, err := s.db.Query(`SELECT ` + houseCols + ` FROM houses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	defer rows.Close()

	var houses []model.House
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan house: %w", err)
		}
		houses = append(houses, *h)
	}
	return houses, rows.Err()
}

func (s *HouseStore) AddPoints(id string, points int) error {
	return s.increment(`points`, id, points)
}

func (s *HouseStore) AddMember(id string) error {
	return s.increment(`member_count`, id, 1)
}

func (s *HouseStore) increment(col, id string, delta int) error {
	result, err := s.db.Exec(
		`UPDATE houses SET `+col+` = `+col+` + ?, updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("increment house %s: %w", col, err)
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

// ReplaceAggregates writes points and member counts for every given house in
// a single transaction, creating rows that do not exist yet.
func (s *HouseStore) ReplaceAggregates(aggs []HouseAggregate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, a := range aggs {
		_, err := tx.Exec(
			`INSERT INTO houses (id, name, points, member_count, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET points = excluded.points,
			   member_count = excluded.member_count, updated_at = excluded.updated_at`,
			a.ID, a.Name, a.Points, a.MemberCount, now,
		)
		if err != nil {
			return fmt.Errorf("upsert house %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InitializeMissing creates zeroed rows for any of the given houses that are
// absent, in one transaction. It returns the ids that were created.
func (s *HouseStore) InitializeMissing(houses []model.HouseInfo) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var created []string
	for _, h := range houses {
		result, err := tx.Exec(
			`INSERT INTO houses (id, name, points, member_count, updated_at) VALUES (?, ?, 0, 0, ?)
			 ON CONFLICT(id) DO NOTHING`,
			h.ID, h.Name, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert house %s: %w", h.ID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			created = append(created, h.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// SyncMemberCounts recounts non-admin members for the given houses and stores
// the result in one transaction. Missing house rows are skipped.
func (s *HouseStore) SyncMemberCounts(houses []string, adminEmail string) (map[string]int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	counts := make(map[string]int, len(houses))
	for _, id := range houses {
		var n int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM users WHERE house = ? AND is_admin = 0 AND email <> ?`,
			id, adminEmail,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count members of %s: %w", id, err)
		}
		result, err := tx.Exec(
			`UPDATE houses SET member_count = ?, updated_at = ? WHERE id = ?`,
			n, now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("update member count of %s: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			counts[id] = n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return counts, nil
}
