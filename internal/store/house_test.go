package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/cleanwarts/internal/model"
)

func TestHouseCreate(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))

	created, err := hs.Create("gryffindor", "Gryffindor", 0)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	if !created {
		t.Error("expected house to be created")
	}

	h, err := hs.GetByID("gryffindor")
	if err != nil {
		t.Fatalf("get house: %v", err)
	}
	if h == nil {
		t.Fatal("expected house, got nil")
	}
	if h.Name != "Gryffindor" || h.Points != 0 || h.MemberCount != 0 {
		t.Errorf("house = %+v, want Gryffindor/0/0", h)
	}
}

func TestHouseCreateExistingIsNoop(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))

	hs.Create("gryffindor", "Gryffindor", 0)
	hs.AddPoints("gryffindor", 40)

	created, err := hs.Create("gryffindor", "Gryffindor", 0)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	if created {
		t.Error("expected no row to be written")
	}
	h, _ := hs.GetByID("gryffindor")
	if h.Points != 40 {
		t.Errorf("points = %d, want 40", h.Points)
	}
}

func TestHouseGetByIDNotFound(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))

	h, err := hs.GetByID("slytherin")
	if err != nil {
		t.Fatalf("get house: %v", err)
	}
	if h != nil {
		t.Error("expected nil for missing house")
	}
}

func TestHouseIncrements(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))
	hs.Create("ravenclaw", "Ravenclaw", 1)

	if err := hs.AddPoints("ravenclaw", 25); err != nil {
		t.Fatalf("add points: %v", err)
	}
	if err := hs.AddMember("ravenclaw"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	h, _ := hs.GetByID("ravenclaw")
	if h.Points != 25 {
		t.Errorf("points = %d, want 25", h.Points)
	}
	if h.MemberCount != 2 {
		t.Errorf("member_count = %d, want 2", h.MemberCount)
	}
}

func TestHouseAddPointsMissing(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))

	if err := hs.AddPoints("hufflepuff", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHouseReplaceAggregates(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))
	hs.Create("gryffindor", "Gryffindor", 0)
	hs.AddPoints("gryffindor", 999)

	err := hs.ReplaceAggregates([]HouseAggregate{
		{ID: "gryffindor", Name: "Gryffindor", Points: 10, MemberCount: 2},
		{ID: "slytherin", Name: "Slytherin", Points: 5, MemberCount: 1},
	})
	if err != nil {
		t.Fatalf("replace aggregates: %v", err)
	}

	houses, err := hs.List()
	if err != nil {
		t.Fatalf("list houses: %v", err)
	}
	if len(houses) != 2 {
		t.Fatalf("len = %d, want 2", len(houses))
	}
	if houses[0].ID != "gryffindor" || houses[0].Points != 10 || houses[0].MemberCount != 2 {
		t.Errorf("houses[0] = %+v", houses[0])
	}
	if houses[1].ID != "slytherin" || houses[1].Points != 5 {
		t.Errorf("houses[1] = %+v", houses[1])
	}
}

func TestHouseReplaceAggregatesRollsBack(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))

	err := hs.ReplaceAggregates([]HouseAggregate{
		{ID: "gryffindor", Name: "Gryffindor", Points: 10},
		{ID: "slytherin", Name: "Slytherin", Points: -1},
	})
	if err == nil {
		t.Fatal("expected error for negative points")
	}

	houses, _ := hs.List()
	if len(houses) != 0 {
		t.Errorf("len = %d, want 0 after rollback", len(houses))
	}
}

func TestHouseInitializeMissing(t *testing.T) {
	hs := NewHouseStore(setupTestDB(t))
	hs.Create("gryffindor", "Gryffindor", 3)

	created, err := hs.InitializeMissing(model.Houses)
	if err != nil {
		t.Fatalf("initialize missing: %v", err)
	}
	if len(created) != 3 {
		t.Errorf("created = %v, want 3 houses", created)
	}

	h, _ := hs.GetByID("gryffindor")
	if h.MemberCount != 3 {
		t.Errorf("existing house member_count = %d, want 3", h.MemberCount)
	}
}

func TestHouseSyncMemberCounts(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHouseStore(db)
	us := NewUserStore(db)

	hs.Create("gryffindor", "Gryffindor", 0)
	createTestUser(t, us, "a", "a@example.com", "gryffindor")
	createTestUser(t, us, "b", "b@example.com", "gryffindor")
	createTestUser(t, us, "admin", testAdminEmail, "gryffindor")

	counts, err := hs.SyncMemberCounts([]string{"gryffindor", "slytherin"}, testAdminEmail)
	if err != nil {
		t.Fatalf("sync member counts: %v", err)
	}
	if counts["gryffindor"] != 2 {
		t.Errorf("gryffindor = %d, want 2", counts["gryffindor"])
	}
	if _, ok := counts["slytherin"]; ok {
		t.Error("expected missing house to be skipped")
	}
}
