package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// Audit actions. The worker's audit consumer stores these verbatim, so they
// are part of the log schema.
const (
	ActionLogin          = "user.login"
	ActionLoginFailed    = "user.login_failed"
	ActionLockout        = "user.lockout"
	ActionLogout         = "user.logout"
	ActionResetRequested = "password_reset.requested"
	ActionResetPerformed = "password_reset.performed"
	ActionResetRejected  = "password_reset.rejected"
)

// dummyHash is compared against when no account matches, so a failed lookup
// costs the same bcrypt work as a wrong password. bcrypt of a random string;
// nothing verifies against it.
var dummyHash = []byte("$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW")

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// ResetTokens is the reset-token store: single-use, per-user exclusive,
// bounded TTL. Unknown and expired tokens fail with ErrCodeResetTokenInvalid.
type ResetTokens interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, error)
	Validate(ctx context.Context, token string) (uuid.UUID, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
	InvalidateAll(ctx context.Context, userID uuid.UUID) error
	TTL() time.Duration
}

// Throttle counts failed logins per subject inside a rolling window.
type Throttle interface {
	RecordFailure(ctx context.Context, subject string) (int64, error)
	Exceeded(ctx context.Context, subject string) (bool, error)
	Reset(ctx context.Context, subject string) error
	MaxAttempts() int
	Window() time.Duration
}

// AuditEvent is one security-relevant action headed for the audit log.
// Secrets never ride in it; tokens are reduced to prefixes by the caller.
type AuditEvent struct {
	Action   string
	ActorID  string
	Subject  string
	ClientIP string
	Detail   map[string]string
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

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service implements sign-in, sign-out and the password-reset flow.
type Service struct {
	users    user.UserRepository
	sessions *SessionManager
	tokens   ResetTokens
	throttle Throttle
	events   Events
	baseURL  string
	cost     int
	log      logging.Logger
	now      func() time.Time
}

// NewService wires the auth service. baseURL is the public address reset
// links are built on.
func NewService(
	users user.UserRepository,
	sessions *SessionManager,
	tokens ResetTokens,
	throttle Throttle,
	events Events,
	cfg config.AuthConfig,
	baseURL string,
	log logging.Logger,
) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		throttle: throttle,
		events:   events,
		baseURL:  strings.TrimRight(baseURL, "/"),
		cost:     cost,
		log:      log.Named("auth"),
		now:      time.Now,
	}
}

// HashPassword produces the stored bcrypt hash for a password, applying the
// password policy first.
func (s *Service) HashPassword(password string) (string, error) {
	if err := user.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	return string(hash), nil
}

// LoginRequest carries one sign-in attempt.
type LoginRequest struct {
	UsernameOrEmail string
	Password        string
	ClientIP        string
}

// Session is a successful sign-in.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// Login verifies credentials and mints a session. Failed attempts are
// counted; reaching the threshold arms a lockout that is persisted on the
// user row, so it survives cache flushes.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	subject := strings.ToLower(strings.TrimSpace(req.UsernameOrEmail))
	if subject == "" || req.Password == "" {
		return nil, errors.New(errors.ErrCodeValidation, "username and password are required")
	}

	u, err := s.findAccount(ctx, subject)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUserNotFound) {
			// Unknown accounts pay the same bcrypt cost as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			s.audit(ctx, ActionLoginFailed, "", subject, req.ClientIP, map[string]string{"reason": "unknown_account"})
			return nil, errors.New(errors.ErrCodeInvalidCredentials, "username or password is incorrect")
		}
		return nil, err
	}

	now := s.now().UTC()
	if u.LockedAt(now) {
		s.audit(ctx, ActionLoginFailed, u.ID.String(), subject, req.ClientIP, map[string]string{"reason": "locked"})
		return nil, errors.New(errors.ErrCodeAccountLocked, "account is temporarily locked")
	}
	if exceeded, terr := s.throttle.Exceeded(ctx, subject); terr != nil {
		return nil, terr
	} else if exceeded {
		s.audit(ctx, ActionLoginFailed, u.ID.String(), subject, req.ClientIP, map[string]string{"reason": "throttled"})
		return nil, errors.New(errors.ErrCodeAccountLocked, "account is temporarily locked")
	}
	if !u.Active() {
		s.audit(ctx, ActionLoginFailed, u.ID.String(), subject, req.ClientIP, map[string]string{"reason": "disabled"})
		return nil, errors.New(errors.ErrCodeUserDisabled, "account is disabled")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, s.recordFailure(ctx, u, subject, req.ClientIP, now)
	}

	if err := s.throttle.Reset(ctx, subject); err != nil {
		s.log.Warn("failed to reset login throttle", logging.String("subject", subject), logging.Err(err))
	}
	if err := s.users.RecordLogin(ctx, u.ID, req.ClientIP, now); err != nil {
		return nil, err
	}

	token, claims, err := s.sessions.Mint(u)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, ActionLogin, u.ID.String(), u.Username, req.ClientIP, nil)
	s.log.Info("user signed in",
		logging.String("user_id", u.ID.String()),
		logging.String("username", u.Username))
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// recordFailure bumps the counters and arms the lockout at the threshold.
func (s *Service) recordFailure(ctx context.Context, u *user.User, subject, ip string, now time.Time) error {
	count, err := s.throttle.RecordFailure(ctx, subject)
	if err != nil {
		return err
	}
	var until *time.Time
	if count >= int64(s.throttle.MaxAttempts()) {
		t := now.Add(s.throttle.Window())
		until = &t
		s.audit(ctx, ActionLockout, u.ID.String(), subject, ip, map[string]string{
			"until": t.Format(time.RFC3339),
		})
		s.log.Warn("account locked after repeated failures",
			logging.String("user_id", u.ID.String()),
			logging.Int64("failures", count))
	}
	if err := s.users.RecordFailedLogin(ctx, u.ID, until); err != nil {
		return err
	}
	s.audit(ctx, ActionLoginFailed, u.ID.String(), subject, ip, map[string]string{"reason": "bad_password"})
	return errors.New(errors.ErrCodeInvalidCredentials, "username or password is incorrect")
}

// Logout revokes the session.
func (s *Service) Logout(ctx context.Context, claims *Claims, clientIP string) error {
	if err := s.sessions.Revoke(ctx, claims); err != nil {
		return err
	}
	s.audit(ctx, ActionLogout, claims.Subject, claims.Username, clientIP, nil)
	return nil
}

// Validate checks a bearer token and returns its claims. Middleware calls
// this on every authenticated request.
func (s *Service) Validate(ctx context.Context, token string) (*Claims, error) {
	return s.sessions.Validate(ctx, token)
}

// ─────────────────────────────────────────────────────────────────────────────
// Password reset
// ─────────────────────────────────────────────────────────────────────────────

// RequestPasswordReset issues a reset token and mails the link. The outcome
// for the caller is identical whether or not the address has an account;
// only the audit trail records the difference.
func (s *Service) RequestPasswordReset(ctx context.Context, email, clientIP string) error {
	if err := user.ValidateEmail(email); err != nil {
		return err
	}
	normalized := user.NormalizeEmail(email)

	u, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUserNotFound) {
			s.audit(ctx, ActionResetRequested, "", normalized, clientIP, map[string]string{"outcome": "unknown_email"})
			return nil
		}
		return err
	}
	if !u.Active() {
		s.audit(ctx, ActionResetRequested, u.ID.String(), normalized, clientIP, map[string]string{"outcome": "disabled"})
		return nil
	}

	token, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := s.events.Notify(ctx, &Notification{
		Template:    "password_reset",
		RecipientID: u.ID.String(),
		Email:       u.Email,
		Variables: map[string]string{
			"real_name":  u.RealName,
			"reset_url":  s.resetURL(token),
			"expires_in": formatTTL(s.tokens.TTL()),
		},
	}); err != nil {
		return err
	}
	s.audit(ctx, ActionResetRequested, u.ID.String(), normalized, clientIP, map[string]string{
		"outcome":      "sent",
		"token_prefix": tokenPrefix(token),
	})
	s.log.Info("password reset requested", logging.String("user_id", u.ID.String()))
	return nil
}

// ValidateResetToken resolves a token to its account without consuming it,
// for the form that asks for the new password. A token pointing at a
// disabled account fails exactly like an unknown token.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*user.User, error) {
	userID, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUserNotFound) {
			return nil, errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired")
		}
		return nil, err
	}
	if !u.Active() {
		return nil, errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired")
	}
	return u, nil
}

// PerformPasswordReset consumes the token and replaces the password. The
// consume is what makes replays fail: a second call with the same token
// errors like an unknown token.
func (s *Service) PerformPasswordReset(ctx context.Context, token, newPassword, clientIP string) error {
	if err := user.ValidatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, token)
	if err != nil {
		s.audit(ctx, ActionResetRejected, "", "", clientIP, map[string]string{
			"token_prefix": tokenPrefix(token),
		})
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Active() {
		return errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, u.ID, string(hash)); err != nil {
		return err
	}
	if err := s.tokens.InvalidateAll(ctx, u.ID); err != nil {
		s.log.Warn("failed to invalidate remaining reset tokens",
			logging.String("user_id", u.ID.String()), logging.Err(err))
	}
	for _, subject := range []string{strings.ToLower(u.Username), u.Email} {
		if err := s.throttle.Reset(ctx, subject); err != nil {
			s.log.Warn("failed to reset login throttle", logging.String("subject", subject), logging.Err(err))
		}
	}
	// Sessions minted under the old password die with it.
	if err := s.sessions.RevokeAllForUser(ctx, u.ID); err != nil {
		return err
	}

	s.audit(ctx, ActionResetPerformed, u.ID.String(), u.Username, clientIP, map[string]string{
		"token_prefix": tokenPrefix(token),
	})
	if err := s.events.Notify(ctx, &Notification{
		Template:    "password_changed",
		RecipientID: u.ID.String(),
		Email:       u.Email,
		Variables:   map[string]string{"real_name": u.RealName},
	}); err != nil {
		s.log.Warn("password changed notice not published",
			logging.String("user_id", u.ID.String()), logging.Err(err))
	}
	s.log.Info("password reset performed", logging.String("user_id", u.ID.String()))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// findAccount resolves a login identifier: username first, address second.
func (s *Service) findAccount(ctx context.Context, subject string) (*user.User, error) {
	u, err := s.users.GetByUsername(ctx, subject)
	if err == nil {
		return u, nil
	}
	if !errors.IsCode(err, errors.ErrCodeUserNotFound) {
		return nil, err
	}
	return s.users.GetByEmail(ctx, subject)
}

// audit publishes one audit entry. The trail is best effort: a bus outage
// must not block sign-in, so failures are logged and dropped.
func (s *Service) audit(ctx context.Context, action, actorID, subject, clientIP string, detail map[string]string) {
	err := s.events.Audit(ctx, &AuditEvent{
		Action:   action,
		ActorID:  actorID,
		Subject:  subject,
		ClientIP: clientIP,
		Detail:   detail,
	})
	if err != nil {
		s.log.Warn("audit entry not published", logging.String("action", action), logging.Err(err))
	}
}

func (s *Service) resetURL(token string) string {
	return s.baseURL + "/reset-password?token=" + token
}

// formatTTL renders a duration the way the reset mail says it: minutes
// under two hours, whole hours otherwise.
func formatTTL(d time.Duration) string {
	if d < 2*time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Round(time.Minute).Minutes()))
	}
	return fmt.Sprintf("%d hours", int(d.Round(time.Hour).Hours()))
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
