package model

import "time"

type ChatMessage struct {
	ID        int64     `json:"id"`
	House     string    `json:"house"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
