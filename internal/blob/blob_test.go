package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"tasks/abc/before_1.jpg", true},
		{"tasks/temp_1700000000000/after_1.png", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.jpg", false},
		{"tasks/../../escape.jpg", false},
		{"tasks//double.jpg", false},
		{`tasks\windows.jpg`, false},
	}
	for _, tt := range tests {
		if got := validKey(tt.key); got != tt.want {
			t.Errorf("validKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestS3StorePut(t *testing.T) {
	mock := newMockS3()
	s := &S3Store{client: mock, bucket: "photos", baseURL: "https://cdn.example.com"}

	url, err := s.Put(context.Background(), "tasks/t1/before_1.jpg", strings.NewReader("jpeg"), 4, "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://cdn.example.com/tasks/t1/before_1.jpg" {
		t.Errorf("url = %q", url)
	}
	if string(mock.objects["tasks/t1/before_1.jpg"]) != "jpeg" {
		t.Error("object not stored")
	}
	if mock.types["tasks/t1/before_1.jpg"] != "image/jpeg" {
		t.Errorf("content type = %q", mock.types["tasks/t1/before_1.jpg"])
	}
}

func TestS3StorePutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("network down")
	s := &S3Store{client: mock, bucket: "photos", baseURL: "https://cdn.example.com"}

	if _, err := s.Put(context.Background(), "tasks/t1/a.jpg", strings.NewReader("x"), 1, "image/jpeg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestS3StoreRejectsInvalidKey(t *testing.T) {
	s := &S3Store{client: newMockS3(), bucket: "photos"}

	_, err := s.Put(context.Background(), "../x.jpg", strings.NewReader("x"), 1, "image/jpeg")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestPublicBase(t *testing.T) {
	tests := []struct {
		cfg  S3Config
		want string
	}{
		{S3Config{Bucket: "b", PublicURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{S3Config{Bucket: "b", Endpoint: "https://minio.local:9000"}, "https://minio.local:9000/b"},
		{S3Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
	}
	for _, tt := range tests {
		if got := publicBase(tt.cfg); got != tt.want {
			t.Errorf("publicBase(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "/uploads/")

	url, err := s.Put(context.Background(), "tasks/t1/after_5.png", strings.NewReader("png-bytes"), -1, "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "/uploads/tasks/t1/after_5.png" {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tasks", "t1", "after_5.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/uploads")

	_, err := s.Put(context.Background(), "../../etc/cron.d/x", strings.NewReader("x"), 1, "image/png")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestS3StoreDelete(t *testing.T) {
	mock := newMockS3()
	s := &S3Store{client: mock, bucket: "photos", baseURL: "https://cdn.example.com"}
	s.Put(context.Background(), "backups/a.enc", strings.NewReader("x"), 1, "application/octet-stream")

	if err := s.Delete(context.Background(), "backups/a.enc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := mock.objects["backups/a.enc"]; ok {
		t.Error("object still present")
	}
}

func TestLocalStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "")
	ctx := context.Background()

	if _, err := s.Put(ctx, "backups/a.enc", strings.NewReader("x"), 1, "application/octet-stream"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "backups/a.enc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups", "a.enc")); !os.IsNotExist(err) {
		t.Errorf("stat err = %v, want not exist", err)
	}

	// deleting again is fine
	if err := s.Delete(ctx, "backups/a.enc"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if err := s.Delete(ctx, "../x"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}
