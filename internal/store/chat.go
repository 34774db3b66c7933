package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func scanChatMessage(scanner interface{ Scan(...any) error }) (*model.ChatMessage, error) {
	var m model.ChatMessage
	err := scanner.Scan(&m.ID, &m.House, &m.Sender, &m.SenderID, &m.Text, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const chatCols = `id, house, sender, sender_id, text, timestamp`

func (s *ChatStore) Create(house, sender, senderID, text string) (*model.ChatMessage, error) {
	result, err := s.db.Exec(
		`INSERT INTO chat_messages (house, sender, sender_id, text, timestamp) VALUES (?, ?, ?, ?, ?)`,
		house, sender, senderID, text, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+chatCols+` FROM chat_messages WHERE id = ?`, id)
	m, err := scanChatMessage(row)
	if err != nil {
		return nil, fmt.Errorf("get chat message: %w", err)
	}
	return m, nil
}

// Recent returns the last limit messages of a house room in chronological order.
func (s *ChatStore) Recent(house string, limit int) ([]model.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT `+chatCols+` FROM (
		   SELECT `+chatCols+` FROM chat_messages WHERE house = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		house, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
