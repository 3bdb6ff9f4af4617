package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Passcode settings.
const (
	CodeLength      = 6
	CodeTTL         = 10 * time.Minute
	MaxCodeAttempts = 5
	minPasswordLen  = 6
)

// AccountRepository persists profiles, sessions and one-time passcodes.
type AccountRepository interface {
	CreateProfile(ctx context.Context, p *models.Profile) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) (*models.Profile, error)
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	SaveCode(ctx context.Context, c *models.AuthCode) error
	GetCode(ctx context.Context, email string) (*models.AuthCode, error)
	IncrementCodeAttempts(ctx context.Context, email string) error
	DeleteCode(ctx context.Context, email string) error
}

// TokenManager issues and parses session tokens.
type TokenManager interface {
	Issue(userID, sessionID string) (string, time.Time, error)
	Parse(raw string) (*token.Claims, error)
	TTL() time.Duration
}

// CodeSender delivers one-time passcodes to users.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// LogCodeSender writes passcodes to the log. It stands in for a mail
// gateway in development.
type LogCodeSender struct {
	Log *zap.Logger
}

// SendCode logs the passcode for email.
func (s LogCodeSender) SendCode(_ context.Context, email, code string) error {
	s.Log.Info("verification code issued", zap.String("email", email), zap.String("code", code))
	return nil
}

// AuthService implements sign-up with passcode confirmation, sign-in,
// sign-out and session authentication.
type AuthService struct {
	repo       AccountRepository
	tokens     TokenManager
	sender     CodeSender
	events     *notifier
	log        *zap.Logger
	now        func() time.Time
	newCode    func() (string, error)
	bcryptCost int
}

// NewAuthService creates an AuthService. Auth events go to d.Audit.
func NewAuthService(repo AccountRepository, tokens TokenManager, sender CodeSender, d Deps) *AuthService {
	n := d.notifier()
	return &AuthService{
		repo:       repo,
		tokens:     tokens,
		sender:     sender,
		events:     n,
		log:        n.log.With(zap.String("component", "auth")),
		now:        time.Now,
		newCode:    generateCode,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SignUp registers an unconfirmed profile and sends a passcode. Signing up
// again before confirming replaces the password and name and sends a new code.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*models.Profile, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLen)
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetProfileByEmail(ctx, email)
	switch {
	case err == nil && p.EmailConfirmed:
		return nil, models.ErrEmailTaken
	case err == nil:
		p.PasswordHash, p.FullName = hash, strings.TrimSpace(fullName)
		if p, err = s.repo.UpdateProfile(ctx, p); err != nil {
			return nil, err
		}
	case errors.Is(err, models.ErrNotFound):
		p, err = s.repo.CreateProfile(ctx, &models.Profile{
			Email:        email,
			FullName:     strings.TrimSpace(fullName),
			PasswordHash: hash,
		})
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrEmailTaken
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.issueCode(ctx, email); err != nil {
		return nil, err
	}
	s.audit(ctx, p.ID, models.ActionSignUp, email)
	return p, nil
}

// ResendCode sends a fresh passcode to an unconfirmed profile.
func (s *AuthService) ResendCode(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	p, err := s.repo.GetProfileByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.EmailConfirmed {
		return fmt.Errorf("%w: email already confirmed", models.ErrInvalidInput)
	}
	return s.issueCode(ctx, email)
}

// VerifyOTP checks a passcode, confirms the profile and opens a session.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*models.AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.GetCode(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if !s.now().Before(stored.ExpiresAt) {
		_ = s.repo.DeleteCode(ctx, email)
		return nil, models.ErrCodeExpired
	}
	if stored.Attempts >= MaxCodeAttempts {
		_ = s.repo.DeleteCode(ctx, email)
		return nil, models.ErrInvalidCode
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		if err := s.repo.IncrementCodeAttempts(ctx, email); err != nil {
			s.log.Warn("increment code attempts", zap.Error(err))
		}
		s.audit(ctx, "", models.ActionFailed, email)
		return nil, models.ErrInvalidCode
	}
	if err := s.repo.DeleteCode(ctx, email); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !p.EmailConfirmed {
		p.EmailConfirmed = true
		if p, err = s.repo.UpdateProfile(ctx, p); err != nil {
			return nil, err
		}
	}
	s.audit(ctx, p.ID, models.ActionVerify, email)
	return s.openSession(ctx, p)
}

// SignIn checks credentials of a confirmed profile and opens a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, models.ErrInvalidCredentials
	}
	p, err := s.repo.GetProfileByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		s.audit(ctx, "", models.ActionFailed, email)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		s.audit(ctx, p.ID, models.ActionFailed, email)
		return nil, models.ErrInvalidCredentials
	}
	if !p.EmailConfirmed {
		return nil, models.ErrEmailNotConfirmed
	}
	s.audit(ctx, p.ID, models.ActionSignIn, email)
	return s.openSession(ctx, p)
}

// SignOut ends the session. Ending an unknown session is not an error.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	s.audit(ctx, models.UserIDFromContext(ctx), models.ActionSignOut, "")
	return nil
}

// Authenticate validates a bearer token and returns its live session.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*models.Session, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	sess, err := s.repo.GetSession(ctx, claims.SessionID())
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: session ended", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID || sess.Expired(s.now()) {
		return nil, fmt.Errorf("%w: session expired", models.ErrUnauthorized)
	}
	return sess, nil
}

// GetProfile returns the user's profile.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile changes the user's display name.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, fullName string) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.FullName = strings.TrimSpace(fullName)
	return s.repo.UpdateProfile(ctx, p)
}

func (s *AuthService) openSession(ctx context.Context, p *models.Profile) (*models.AuthResult, error) {
	sess := &models.Session{UserID: p.ID, ExpiresAt: s.now().Add(s.tokens.TTL()).UTC()}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	tok, expires, err := s.tokens.Issue(p.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	return &models.AuthResult{Token: tok, ExpiresAt: expires, Profile: p}, nil
}

func (s *AuthService) issueCode(ctx context.Context, email string) error {
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := s.hash(code)
	if err != nil {
		return err
	}
	if err := s.repo.SaveCode(ctx, &models.AuthCode{
		Email:     email,
		CodeHash:  hash,
		ExpiresAt: s.now().Add(CodeTTL).UTC(),
	}); err != nil {
		return err
	}
	return s.sender.SendCode(ctx, email, code)
}

func (s *AuthService) hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return string(h), nil
}

func (s *AuthService) audit(ctx context.Context, userID, action, email string) {
	entry := models.AuditLog{UserID: userID, Action: action}
	if email != "" {
		entry.Details = map[string]any{"email": email}
	}
	s.events.record(ctx, entry)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", models.ErrInvalidInput)
	}
	return email, nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
