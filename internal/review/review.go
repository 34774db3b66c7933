// Package review applies an admin's decision on a task completion and
// propagates awarded points to the task, the submitter and their house.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/push"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/store"
)

type Decision string

const (
	Approve Decision = "approved"
	Reject  Decision = "rejected"
)

const (
	MinPoints = 1
	MaxPoints = 100
)

var (
	ErrInvalidDecision    = errors.New("decision must be approved or rejected")
	ErrPointsOutOfRange   = fmt.Errorf("points must be between %d and %d", MinPoints, MaxPoints)
	ErrCompletionNotFound = errors.New("completion not found")
)

// Step names, in the order they run.
const (
	StepCompletion = "completion"
	StepTask       = "task"
	StepUser       = "user"
	StepHouse      = "house"
)

const notifyTimeout = 10 * time.Second

type CompletionStore interface {
	GetByID(id string) (*model.TaskCompletion, error)
	Review(id string, status model.CompletionStatus, points int, reviewedAt time.Time) error
}

type TaskStore interface {
	GetByID(id string) (*model.CleaningTask, error)
	MarkApproved(id string, cleanedAt time.Time) error
}

type UserStore interface {
	AwardPoints(id string, points int) error
}

type HouseStore interface {
	AddPoints(id string, points int) error
}

// HouseEnsurer creates a missing house row.
type HouseEnsurer interface {
	EnsureHouse(ctx context.Context, id string) (*model.House, error)
}

type Notifier interface {
	NotifyUser(ctx context.Context, userID string, payload push.Payload) int
}

// Step reports what happened to one write of a decision.
type Step struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
	err     error
}

// Outcome is the per-step result of a decision.
type Outcome struct {
	CompletionID string   `json:"completion_id"`
	Decision     Decision `json:"decision"`
	Points       int      `json:"points"`
	Steps        []Step   `json:"steps"`
}

// Err joins the errors of every failed step, or returns nil.
func (o *Outcome) Err() error {
	var errs []error
	for _, s := range o.Steps {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.err))
		}
	}
	return errors.Join(errs...)
}

func (o *Outcome) record(name string, applied bool, note string, err error) {
	s := Step{Name: name, Applied: applied, Note: note, err: err}
	if err != nil {
		s.Error = err.Error()
		metrics.ReviewStepFailures.WithLabelValues(name).Inc()
	}
	o.Steps = append(o.Steps, s)
}

type Propagator struct {
	completions CompletionStore
	tasks       TaskStore
	users       UserStore
	houses      HouseStore
	ensurer     HouseEnsurer
	notifier    Notifier
	broker      *realtime.Broker
	logger      *slog.Logger
	now         func() time.Time
}

// NewPropagator wires the stores a decision writes to. notifier may be nil.
func NewPropagator(completions CompletionStore, tasks TaskStore, users UserStore, houses HouseStore,
	ensurer HouseEnsurer, notifier Notifier, broker *realtime.Broker, logger *slog.Logger) *Propagator {
	return &Propagator{
		completions: completions,
		tasks:       tasks,
		users:       users,
		houses:      houses,
		ensurer:     ensurer,
		notifier:    notifier,
		broker:      broker,
		logger:      logger,
		now:         time.Now,
	}
}

// Decide records decision on a completion and propagates approved points.
//
// Each write after the completion update is attempted independently and
// reported in the outcome; earlier writes are not undone when a later one
// fails. Decide does not check the completion's current status, so approving
// the same completion twice awards its points twice.
func (p *Propagator) Decide(ctx context.Context, completionID string, decision Decision, points int) (*Outcome, error) {
	switch decision {
	case Approve:
		if points < MinPoints || points > MaxPoints {
			return nil, ErrPointsOutOfRange
		}
	case Reject:
		points = 0
	default:
		return nil, ErrInvalidDecision
	}

	c, err := p.completions.GetByID(completionID)
	if err != nil {
		return nil, fmt.Errorf("load completion: %w", err)
	}
	if c == nil {
		return nil, ErrCompletionNotFound
	}

	now := p.now().UTC()
	out := &Outcome{CompletionID: c.ID, Decision: decision, Points: points}
	log := p.logger.With("completion_id", c.ID, "decision", decision)

	status := model.CompletionRejected
	if decision == Approve {
		status = model.CompletionApproved
	}
	if err := p.completions.Review(c.ID, status, points, now); err != nil {
		out.record(StepCompletion, false, "", err)
		log.Error("review step failed", "step", StepCompletion, "error", err)
		return out, fmt.Errorf("update completion: %w", err)
	}
	out.record(StepCompletion, true, "", nil)
	metrics.Reviews.WithLabelValues(string(decision)).Inc()
	p.broker.Publish(realtime.NewEvent(realtime.EntityCompletion, "reviewed", c.ID,
		map[string]any{"user_id": c.UserID, "status": string(status)}))

	if decision == Approve {
		p.approveTask(c, now, out, log)
		p.awardUser(c, points, out, log)
		p.awardHouse(ctx, c, points, out, log)
	}

	if err := out.Err(); err != nil {
		log.Error("decision partially applied", "error", err)
	} else {
		log.Info("decision applied", "points", points, "user_id", c.UserID)
	}

	p.notify(ctx, c, decision, points)
	return out, nil
}

func (p *Propagator) approveTask(c *model.TaskCompletion, now time.Time, out *Outcome, log *slog.Logger) {
	if model.IsSyntheticTaskID(c.TaskID) {
		out.record(StepTask, false, "synthetic task id", nil)
		return
	}
	task, err := p.tasks.GetByID(c.TaskID)
	if err != nil {
		out.record(StepTask, false, "", err)
		log.Error("review step failed", "step", StepTask, "task_id", c.TaskID, "error", err)
		return
	}
	if task == nil {
		out.record(StepTask, false, "task not found", nil)
		return
	}
	if err := p.tasks.MarkApproved(task.ID, now); err != nil {
		out.record(StepTask, false, "", err)
		log.Error("review step failed", "step", StepTask, "task_id", task.ID, "error", err)
		return
	}
	out.record(StepTask, true, "", nil)
	p.broker.Publish(realtime.NewEvent(realtime.EntityTask, "approved", task.ID, nil))
}

func (p *Propagator) awardUser(c *model.TaskCompletion, points int, out *Outcome, log *slog.Logger) {
	if err := p.users.AwardPoints(c.UserID, points); err != nil {
		out.record(StepUser, false, "", err)
		log.Error("review step failed", "step", StepUser, "user_id", c.UserID, "error", err)
		return
	}
	out.record(StepUser, true, "", nil)
	metrics.PointsAwarded.Add(float64(points))
	p.broker.Publish(realtime.NewEvent(realtime.EntityUser, "updated", c.UserID, map[string]any{"house": c.UserHouse}))
}

func (p *Propagator) awardHouse(ctx context.Context, c *model.TaskCompletion, points int, out *Outcome, log *slog.Logger) {
	if !model.IsHouse(c.UserHouse) {
		out.record(StepHouse, false, "unrecognized house", nil)
		return
	}

	err := p.houses.AddPoints(c.UserHouse, points)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("house missing, creating it", "house", c.UserHouse)
		if _, err = p.ensurer.EnsureHouse(ctx, c.UserHouse); err == nil {
			err = p.houses.AddPoints(c.UserHouse, points)
		}
	}
	if err != nil {
		out.record(StepHouse, false, "", err)
		log.Error("review step failed", "step", StepHouse, "house", c.UserHouse, "error", err)
		return
	}
	out.record(StepHouse, true, "", nil)
	p.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "updated", c.UserHouse, nil))
}

func (p *Propagator) notify(ctx context.Context, c *model.TaskCompletion, decision Decision, points int) {
	if p.notifier == nil {
		return
	}
	payload := push.Payload{
		Title: "Submission reviewed",
		Body:  fmt.Sprintf("%q was not approved.", c.Title),
		URL:   "/my-tasks",
		Tag:   "review-" + c.ID,
	}
	if decision == Approve {
		payload.Body = fmt.Sprintf("%q was approved: +%d points for %s!", c.Title, points, houseName(c.UserHouse))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	p.notifier.NotifyUser(ctx, c.UserID, payload)
}

func houseName(id string) string {
	if h, ok := model.LookupHouse(id); ok {
		return h.Name
	}
	return "your house"
}
