package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/cleanwarts/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	b, err := bs.Create("backups/a.db.enc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}

	if err := bs.UpdateStatus(b.ID, model.BackupStatusFailed, "disk full"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.GetByID(b.ID)
	if got.Status != model.BackupStatusFailed || got.ErrorMessage != "disk full" {
		t.Errorf("got %+v", got)
	}

	if err := bs.UpdateCompleted(b.ID, 2048); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	got, _ = bs.GetByID(b.ID)
	if got.Status != model.BackupStatusCompleted || got.SizeBytes != 2048 {
		t.Errorf("got %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at")
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want cleared", got.ErrorMessage)
	}
}

func TestBackupGetMissing(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	b, err := bs.GetByID(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil, got %+v", b)
	}
	if err := bs.UpdateStatus(42, model.BackupStatusFailed, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBackupListNewestFirst(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	for _, k := range []string{"backups/1", "backups/2", "backups/3"} {
		if _, err := bs.Create(k); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}

	list, err := bs.List(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Key != "backups/3" || list[1].Key != "backups/2" {
		t.Errorf("order = %q, %q", list[0].Key, list[1].Key)
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	bs.Create("backups/old")
	bs.Create("backups/older")

	keys, err := bs.DeleteOlderThan(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("deleted %v, want none", keys)
	}

	keys, err = bs.DeleteOlderThan(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("deleted %v, want 2 keys", keys)
	}
	list, _ := bs.List(10)
	if len(list) != 0 {
		t.Errorf("remaining = %d, want 0", len(list))
	}
}
