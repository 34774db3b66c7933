package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

func createTestCompletion(t *testing.T, cs *CompletionStore, id, userID string) *model.TaskCompletion {
	t.Helper()
	c, err := cs.Create(&model.TaskCompletion{
		ID:             id,
		TaskID:         "temp_1700000000000",
		UserID:         userID,
		UserName:       "Alice",
		UserHouse:      "ravenclaw",
		Title:          "Cleaned",
		Description:    "Picked up litter",
		BeforeImageURL: "/uploads/before.jpg",
		AfterImageURL:  "/uploads/after.jpg",
	})
	if err != nil {
		t.Fatalf("create completion %s: %v", id, err)
	}
	return c
}

func TestCompletionCreate(t *testing.T) {
	cs := NewCompletionStore(setupTestDB(t))

	c := createTestCompletion(t, cs, "c1", "u1")
	if c.Status != model.CompletionPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if c.PointsAwarded != 0 {
		t.Errorf("points_awarded = %d, want 0", c.PointsAwarded)
	}
	if c.ReviewedAt != nil {
		t.Error("expected nil reviewed_at")
	}
	if c.SubmittedAt.IsZero() {
		t.Error("expected submitted_at to be set")
	}
}

func TestCompletionReview(t *testing.T) {
	cs := NewCompletionStore(setupTestDB(t))
	createTestCompletion(t, cs, "c1", "u1")
	createTestCompletion(t, cs, "c2", "u1")

	if err := cs.Review("c1", model.CompletionApproved, 25, time.Now()); err != nil {
		t.Fatalf("review: %v", err)
	}

	c, _ := cs.GetByID("c1")
	if c.Status != model.CompletionApproved || c.PointsAwarded != 25 {
		t.Errorf("completion = %s/%d, want approved/25", c.Status, c.PointsAwarded)
	}
	if c.ReviewedAt == nil {
		t.Error("expected reviewed_at to be set")
	}

	pending, err := cs.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "c2" {
		t.Errorf("pending = %+v, want only c2", pending)
	}

	n, err := cs.CountApproved()
	if err != nil {
		t.Fatalf("count approved: %v", err)
	}
	if n != 1 {
		t.Errorf("approved = %d, want 1", n)
	}
}

func TestCompletionListByUser(t *testing.T) {
	cs := NewCompletionStore(setupTestDB(t))
	createTestCompletion(t, cs, "c1", "u1")
	createTestCompletion(t, cs, "c2", "u2")
	createTestCompletion(t, cs, "c3", "u1")

	list, err := cs.ListByUser("u1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	for _, c := range list {
		if c.UserID != "u1" {
			t.Errorf("unexpected user %q", c.UserID)
		}
	}
}
