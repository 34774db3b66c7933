package model

import "time"

type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskApproved TaskStatus = "approved"
)

type AreaType string

const (
	AreaMarker    AreaType = "marker"
	AreaPolygon   AreaType = "polygon"
	AreaRectangle AreaType = "rectangle"
)

// Valid reports whether a is one of the known drawn-area kinds.
func (a AreaType) Valid() bool {
	switch a {
	case AreaMarker, AreaPolygon, AreaRectangle:
		return true
	}
	return false
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Area is the optional drawn geometry attached to a cleaning request.
type Area struct {
	Type    AreaType `json:"type"`
	GeoJSON string   `json:"geojson"`
}

// CleaningTask is a location flagged as needing cleaning.
type CleaningTask struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Location      Location   `json:"location"`
	Area          *Area      `json:"area,omitempty"`
	RequestedBy   string     `json:"requested_by"`
	Status        TaskStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	LastCleanedAt *time.Time `json:"last_cleaned_at,omitempty"`
}
