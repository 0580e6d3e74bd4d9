// Package users is the account-management side of the house: registration,
// profile updates, password administration, and the preference bag. Sign-in
// itself lives in application/auth.
package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

const (
	ActionCreated       = "user.created"
	ActionUpdated       = "user.updated"
	ActionDeleted       = "user.deleted"
	ActionPasswordSet   = "user.password_set"
	ActionEmailVerified = "user.email_verified"
)

// AuditEvent is one administrative action headed for the audit log.
type AuditEvent struct {
	Action   string
	ActorID  string
	Subject  string
	Detail   map[string]string
	ClientIP string
}

// Notification asks the worker to deliver one templated mail.
type Notification struct {
	Template    string
	RecipientID string
	Email       string
	Variables   map[string]string
}

// Events publishes audit entries and notification mail onto the bus.
type Events interface {
	Audit(ctx context.Context, e *AuditEvent) error
	Notify(ctx context.Context, n *Notification) error
}

// Service manages accounts. Role checks happen at the transport layer; the
// service assumes the caller is allowed to administer users.
type Service struct {
	users   user.UserRepository
	events  Events
	baseURL string
	cost    int
	log     logging.Logger
	now     func() time.Time
}

func NewService(users user.UserRepository, events Events, cfg config.AuthConfig, baseURL string, log logging.Logger) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &Service{
		users:   users,
		events:  events,
		baseURL: baseURL,
		cost:    cost,
		log:     log.Named("users"),
		now:     time.Now,
	}
}

// RegisterRequest carries a new account. Role defaults to member.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	RealName string `json:"real_name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
}

// Register creates an account and sends the welcome mail. Duplicate email
// or username surfaces as the repository's duplicate codes.
func (s *Service) Register(ctx context.Context, req RegisterRequest, actorID string) (*user.User, error) {
	if err := user.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := user.ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := user.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	role := user.RoleMember
	if req.Role != "" {
		parsed, err := user.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}

	u := user.New(req.Email, req.Username, req.RealName)
	u.Role = role
	u.Language = req.Language
	u.PasswordHash = string(hash)

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.audit(ctx, &AuditEvent{
		Action:  ActionCreated,
		ActorID: actorID,
		Subject: u.ID.String(),
		Detail:  map[string]string{"username": u.Username, "role": string(u.Role)},
	})
	if err := s.events.Notify(ctx, &Notification{
		Template:    "welcome",
		RecipientID: u.ID.String(),
		Email:       u.Email,
		Variables: map[string]string{
			"real_name": u.RealName,
			"username":  u.Username,
			"site_url":  s.baseURL,
		},
	}); err != nil {
		s.log.Warn("welcome mail not published",
			logging.String("user_id", u.ID.String()), logging.Err(err))
	}
	s.log.Info("user registered",
		logging.String("user_id", u.ID.String()),
		logging.String("username", u.Username),
		logging.String("role", string(u.Role)))
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter user.ListFilter) ([]*user.User, int64, error) {
	return s.users.List(ctx, filter)
}

// UpdateRequest applies partial profile changes; nil fields are untouched.
type UpdateRequest struct {
	Email    *string `json:"email,omitempty"`
	RealName *string `json:"real_name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Status   *string `json:"status,omitempty"`
	Language *string `json:"language,omitempty"`
}

// Update loads, patches and stores the account, and records which fields
// changed in the audit trail.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest, actorID string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]string{}
	if req.Email != nil {
		if err := user.ValidateEmail(*req.Email); err != nil {
			return nil, err
		}
		u.Email = user.NormalizeEmail(*req.Email)
		changed["email"] = u.Email
	}
	if req.RealName != nil {
		u.RealName = *req.RealName
		changed["real_name"] = u.RealName
	}
	if req.Role != nil {
		role, err := user.ParseRole(*req.Role)
		if err != nil {
			return nil, err
		}
		u.Role = role
		changed["role"] = string(role)
	}
	if req.Status != nil {
		switch status := user.Status(*req.Status); status {
		case user.StatusActive, user.StatusDisabled:
			u.Status = status
			changed["status"] = string(status)
		default:
			return nil, errors.New(errors.ErrCodeValidation, "unknown status").WithDetail(*req.Status)
		}
	}
	if req.Language != nil {
		u.Language = *req.Language
		changed["language"] = u.Language
	}
	if len(changed) == 0 {
		return u, nil
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.audit(ctx, &AuditEvent{Action: ActionUpdated, ActorID: actorID, Subject: id.String(), Detail: changed})
	return u, nil
}

// Delete soft-deletes the account; its sessions die at their natural expiry.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID string) error {
	if actorID == id.String() {
		return errors.New(errors.ErrCodeValidation, "cannot delete your own account")
	}
	if err := s.users.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, &AuditEvent{Action: ActionDeleted, ActorID: actorID, Subject: id.String()})
	return nil
}

// SetPassword replaces the password out of band, for admin resets and the
// CLI. The account is told by mail.
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password, actorID string) error {
	if err := user.ValidatePassword(password); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.audit(ctx, &AuditEvent{Action: ActionPasswordSet, ActorID: actorID, Subject: id.String()})
	if err := s.events.Notify(ctx, &Notification{
		Template:    "password_changed",
		RecipientID: u.ID.String(),
		Email:       u.Email,
		Variables:   map[string]string{"real_name": u.RealName},
	}); err != nil {
		s.log.Warn("password changed notice not published",
			logging.String("user_id", id.String()), logging.Err(err))
	}
	return nil
}

// VerifyEmail marks the address confirmed.
func (s *Service) VerifyEmail(ctx context.Context, id uuid.UUID, actorID string) error {
	if err := s.users.VerifyEmail(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.audit(ctx, &AuditEvent{Action: ActionEmailVerified, ActorID: actorID, Subject: id.String()})
	return nil
}

// Preference reads one preference value, "" when unset.
func (s *Service) Preference(ctx context.Context, id uuid.UUID, name string) (string, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Preference(name), nil
}

// SetPreference writes one preference entry; an empty value deletes it.
func (s *Service) SetPreference(ctx context.Context, id uuid.UUID, name, value string) error {
	if name == "" {
		return errors.New(errors.ErrCodeValidation, "preference name is required")
	}
	return s.users.SetPreference(ctx, id, name, value)
}

// audit publishes best effort; administration must not fail on a bus outage.
func (s *Service) audit(ctx context.Context, e *AuditEvent) {
	if err := s.events.Audit(ctx, e); err != nil {
		s.log.Warn("audit entry not published", logging.String("action", e.Action), logging.Err(err))
	}
}
