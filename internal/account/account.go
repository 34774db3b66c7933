// Package account registers users, checks their credentials and maintains
// the bootstrap admin account.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/sanitize"
	"github.com/dukerupert/cleanwarts/internal/store"
)

const (
	MinPasswordLen = 6
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLen = 72
	maxNameLen     = 80

	AdminName   = "Administrator"
	adminMobile = "1234567890"
)

var (
	ErrInvalid            = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrReservedEmail      = errors.New("email is reserved")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserStore interface {
	Create(u *model.User) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	SetAdmin(id string, isAdmin bool) error
	SetPasswordHash(id, hash string) error
}

type HouseStore interface {
	AddMember(id string) error
	Create(id, name string, memberCount int) (bool, error)
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	House    string `json:"house"`
}

type Service struct {
	users      UserStore
	houses     HouseStore
	broker     *realtime.Broker
	adminEmail string
	logger     *slog.Logger
}

func NewService(users UserStore, houses HouseStore, broker *realtime.Broker, adminEmail string, logger *slog.Logger) *Service {
	return &Service{
		users:      users,
		houses:     houses,
		broker:     broker,
		adminEmail: strings.ToLower(adminEmail),
		logger:     logger,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in *RegisterInput) validate() error {
	in.Name = sanitize.Truncate(sanitize.Text(in.Name), maxNameLen)
	in.Email = normalizeEmail(in.Email)
	in.Mobile = strings.TrimSpace(in.Mobile)
	in.House = strings.ToLower(strings.TrimSpace(in.House))

	switch {
	case in.Name == "":
		return invalid("name is required")
	case !sanitize.ValidEmail(in.Email):
		return invalid("a valid email is required")
	case !sanitize.ValidMobile(in.Mobile):
		return invalid("a valid mobile number is required")
	case len(in.Password) < MinPasswordLen:
		return invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLen))
	case len(in.Password) > MaxPasswordLen:
		return invalid(fmt.Sprintf("password must be at most %d bytes", MaxPasswordLen))
	case !model.IsHouse(in.House):
		return invalid("choose one of the four houses")
	}
	return nil
}

// Register creates a member with zero points and adds them to their house,
// creating the house row when it does not exist yet.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Email == s.adminEmail {
		return nil, ErrReservedEmail
	}

	existing, err := s.users.GetByEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(&model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Mobile:       in.Mobile,
		House:        in.House,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.broker.Publish(realtime.NewEvent(realtime.EntityUser, "created", user.ID, map[string]any{"house": user.House}))

	// The account exists at this point; a failed member count is repaired by
	// the next recalculation.
	if err := s.addMember(user.House); err != nil {
		s.logger.Warn("update house member count", "house", user.House, "error", err)
	} else {
		s.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "updated", user.House, nil))
	}

	s.logger.Info("user registered", "user_id", user.ID, "house", user.House)
	return user, nil
}

func (s *Service) addMember(house string) error {
	err := s.houses.AddMember(house)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	info, _ := model.LookupHouse(house)
	created, err := s.houses.Create(house, info.Name, 1)
	if err != nil {
		return err
	}
	if !created {
		// Lost a race with another creator.
		return s.houses.AddMember(house)
	}
	return nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureAdmin makes sure the reserved admin account exists with the admin
// role and the given password. An existing record with the reserved email is
// promoted in place.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (*model.User, error) {
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return nil, invalid("admin password length out of range")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.GetByEmail(s.adminEmail)
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if user == nil {
		user, err = s.users.Create(&model.User{
			ID:           uuid.NewString(),
			Name:         AdminName,
			Email:        s.adminEmail,
			Mobile:       adminMobile,
			House:        model.DefaultHouse,
			IsAdmin:      true,
			PasswordHash: string(hash),
		})
		if err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		s.logger.Info("admin account created", "user_id", user.ID)
		return user, nil
	}

	if !user.IsAdmin {
		if err := s.users.SetAdmin(user.ID, true); err != nil {
			return nil, fmt.Errorf("promote admin: %w", err)
		}
		user.IsAdmin = true
		s.logger.Info("admin account promoted", "user_id", user.ID)
		s.broker.Publish(realtime.NewEvent(realtime.EntityUser, "updated", user.ID, map[string]any{"house": user.House}))
	}
	if err := s.users.SetPasswordHash(user.ID, string(hash)); err != nil {
		return nil, fmt.Errorf("set admin password: %w", err)
	}
	user.PasswordHash = string(hash)
	return user, nil
}
