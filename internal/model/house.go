package model

import "time"

// HouseInfo is the static configuration of one of the competing houses.
type HouseInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
}

// DefaultHouse is used when a record references no house at all.
const DefaultHouse = "gryffindor"

// Houses is the fixed set of houses, in display order.
var Houses = []HouseInfo{
	{ID: "gryffindor", Name: "Gryffindor", PrimaryColor: "#740001", SecondaryColor: "#d3a625"},
	{ID: "hufflepuff", Name: "Hufflepuff", PrimaryColor: "#ecb939", SecondaryColor: "#000000"},
	{ID: "ravenclaw", Name: "Ravenclaw", PrimaryColor: "#0e1a40", SecondaryColor: "#946b2d"},
	{ID: "slytherin", Name: "Slytherin", PrimaryColor: "#1a472a", SecondaryColor: "#aaaaaa"},
}

// LookupHouse returns the configuration for a recognized house id.
func LookupHouse(id string) (HouseInfo, bool) {
	for _, h := range Houses {
		if h.ID == id {
			return h, true
		}
	}
	return HouseInfo{}, false
}

// IsHouse reports whether id is one of the recognized houses.
func IsHouse(id string) bool {
	_, ok := LookupHouse(id)
	return ok
}

// House is the stored aggregate for a house.
type House struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Points      int       `json:"points"`
	MemberCount int       `json:"member_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
