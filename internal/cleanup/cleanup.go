// Package cleanup manages cleaning requests and the photo evidence users
// submit when they clean a location.
package cleanup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cleanwarts/internal/blob"
	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/sanitize"
)

var (
	ErrInvalid         = errors.New("invalid input")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrProfileNotFound = errors.New("user profile not found")
)

// NearbyRadius is the distance, in degrees, within which a pending task is
// considered to be the one being cleaned (roughly 50 meters).
const NearbyRadius = 0.0005

const (
	fallbackUserName = "Unknown User"
	maxTitleLen      = 120
	maxDescLen       = 2000
)

var syntheticIDRegex = regexp.MustCompile(`^temp_[0-9]+$`)

type TaskStore interface {
	Create(t *model.CleaningTask) (*model.CleaningTask, error)
	ListOpen() ([]model.CleaningTask, error)
}

type CompletionStore interface {
	Create(c *model.TaskCompletion) (*model.TaskCompletion, error)
	ListByUser(userID string) ([]model.TaskCompletion, error)
}

type UserStore interface {
	GetByID(id string) (*model.User, error)
}

// Image is one uploaded photo.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type RequestInput struct {
	Title       string
	Description string
	Location    *model.Location
	Area        *model.Area
	RequesterID string
}

type SubmitInput struct {
	TaskID      string
	Title       string
	Description string
	Before      *Image
	After       *Image
	UserID      string
}

type Service struct {
	tasks       TaskStore
	completions CompletionStore
	users       UserStore
	blobs       blob.Store
	broker      *realtime.Broker
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(tasks TaskStore, completions CompletionStore, users UserStore, blobs blob.Store, broker *realtime.Broker, logger *slog.Logger) *Service {
	return &Service{
		tasks:       tasks,
		completions: completions,
		users:       users,
		blobs:       blobs,
		broker:      broker,
		logger:      logger,
		now:         time.Now,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

// RequestCleaning flags a location as needing cleaning.
func (s *Service) RequestCleaning(ctx context.Context, in RequestInput) (*model.CleaningTask, error) {
	if in.RequesterID == "" {
		return nil, ErrUnauthenticated
	}
	title := sanitize.Truncate(sanitize.Text(in.Title), maxTitleLen)
	desc := sanitize.Truncate(sanitize.Text(in.Description), maxDescLen)
	if title == "" || desc == "" {
		return nil, invalid("title and description are required")
	}
	if err := validateLocation(in.Location); err != nil {
		return nil, err
	}
	if in.Area != nil && !in.Area.Type.Valid() {
		return nil, invalid(fmt.Sprintf("unknown area type %q", in.Area.Type))
	}

	task, err := s.tasks.Create(&model.CleaningTask{
		ID:          uuid.NewString(),
		Title:       title,
		Description: desc,
		Location:    *in.Location,
		Area:        in.Area,
		RequestedBy: in.RequesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("create cleaning task: %w", err)
	}

	metrics.TaskRequests.Inc()
	s.broker.Publish(realtime.NewEvent(realtime.EntityTask, "created", task.ID, nil))
	s.logger.Info("cleaning requested", "task_id", task.ID, "user_id", in.RequesterID)
	return task, nil
}

func validateLocation(loc *model.Location) error {
	if loc == nil {
		return invalid("location is required")
	}
	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return invalid("latitude out of range")
	}
	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return invalid("longitude out of range")
	}
	return nil
}

// ValidTaskID reports whether id can name a task in storage paths: either a
// generated task id or a synthetic one.
func ValidTaskID(id string) bool {
	if syntheticIDRegex.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

func validateImage(name string, img *Image) error {
	if img == nil || img.Body == nil || img.Size <= 0 {
		return invalid(name + " image is required")
	}
	if !strings.HasPrefix(strings.ToLower(img.ContentType), "image/") {
		return invalid(name + " must be an image")
	}
	return nil
}

// SubmitCompletion uploads the before and after photos and records a pending
// completion. Uploads are not rolled back when a later step fails.
func (s *Service) SubmitCompletion(ctx context.Context, in SubmitInput) (*model.TaskCompletion, error) {
	if in.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if !ValidTaskID(in.TaskID) {
		return nil, invalid("a valid task id is required")
	}
	title := sanitize.Truncate(sanitize.Text(in.Title), maxTitleLen)
	desc := sanitize.Truncate(sanitize.Text(in.Description), maxDescLen)
	if title == "" || desc == "" {
		return nil, invalid("title and description are required")
	}
	if err := validateImage("before", in.Before); err != nil {
		return nil, err
	}
	if err := validateImage("after", in.After); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(in.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}

	beforeURL, err := s.upload(ctx, in.TaskID, "before", in.Before)
	if err != nil {
		return nil, err
	}
	afterURL, err := s.upload(ctx, in.TaskID, "after", in.After)
	if err != nil {
		s.logger.Warn("orphaned upload", "task_id", in.TaskID, "url", beforeURL)
		return nil, err
	}

	name := user.Name
	if name == "" {
		name = fallbackUserName
	}
	house := user.House
	if house == "" {
		house = model.DefaultHouse
	}

	c, err := s.completions.Create(&model.TaskCompletion{
		ID:             uuid.NewString(),
		TaskID:         in.TaskID,
		UserID:         user.ID,
		UserName:       name,
		UserHouse:      house,
		Title:          title,
		Description:    desc,
		BeforeImageURL: beforeURL,
		AfterImageURL:  afterURL,
	})
	if err != nil {
		s.logger.Warn("orphaned uploads", "task_id", in.TaskID, "before", beforeURL, "after", afterURL)
		return nil, fmt.Errorf("create completion: %w", err)
	}

	metrics.Submissions.Inc()
	s.broker.Publish(realtime.NewEvent(realtime.EntityCompletion, "created", c.ID, map[string]any{"user_id": c.UserID}))
	s.logger.Info("completion submitted", "completion_id", c.ID, "task_id", c.TaskID, "user_id", c.UserID)
	return c, nil
}

func (s *Service) upload(ctx context.Context, taskID, kind string, img *Image) (string, error) {
	key := fmt.Sprintf("tasks/%s/%s_%d%s", taskID, kind, s.now().UnixMilli(), imageExt(img))
	url, err := s.blobs.Put(ctx, key, img.Body, img.Size, img.ContentType)
	if err != nil {
		return "", fmt.Errorf("upload %s image: %w", kind, err)
	}
	return url, nil
}

var extRegex = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

func imageExt(img *Image) string {
	if ext := strings.ToLower(filepath.Ext(img.Filename)); extRegex.MatchString(ext) {
		return ext
	}
	switch strings.ToLower(img.ContentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// Nearby is a pending task and its distance in degrees from a point.
type Nearby struct {
	Task     model.CleaningTask `json:"task"`
	Distance float64            `json:"distance"`
}

// NearestTasks returns pending tasks within NearbyRadius of the point,
// nearest first.
func (s *Service) NearestTasks(ctx context.Context, lat, lng float64) ([]Nearby, error) {
	if err := validateLocation(&model.Location{Latitude: lat, Longitude: lng}); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListOpen()
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}

	var near []Nearby
	for _, t := range tasks {
		if t.Status != model.TaskPending {
			continue
		}
		d := math.Hypot(t.Location.Latitude-lat, t.Location.Longitude-lng)
		if d <= NearbyRadius {
			near = append(near, Nearby{Task: t, Distance: d})
		}
	}
	slices.SortStableFunc(near, func(a, b Nearby) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return near, nil
}

// ResolveTaskID returns the nearest pending task to the point, or a synthetic
// id derived from now when nothing is close enough.
func (s *Service) ResolveTaskID(ctx context.Context, lat, lng float64, now time.Time) (string, error) {
	near, err := s.NearestTasks(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if len(near) > 0 {
		return near[0].Task.ID, nil
	}
	return model.SyntheticTaskPrefix + strconv.FormatInt(now.UnixMilli(), 10), nil
}

// ListOpenTasks returns every task that still needs cleaning.
func (s *Service) ListOpenTasks(ctx context.Context) ([]model.CleaningTask, error) {
	tasks, err := s.tasks.ListOpen()
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return tasks, nil
}

// ListUserCompletions returns a user's submissions, most recent first.
func (s *Service) ListUserCompletions(ctx context.Context, userID string) ([]model.TaskCompletion, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	list, err := s.completions.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return list, nil
}
