package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"uptask/internal/models"
	"uptask/pkg/apierrors"
	"uptask/pkg/auth"
)

// AccountService covers registration, login, confirmation and password resets
type AccountService struct {
	users    UserRepository
	jwtAuth  *auth.LocalJWTAuth
	mailer   Mailer
	sessions *SessionVerifier
}

// NewAccountService creates an account service. sessions may be nil.
func NewAccountService(users UserRepository, jwtAuth *auth.LocalJWTAuth, mailer Mailer, sessions *SessionVerifier) *AccountService {
	return &AccountService{
		users:    users,
		jwtAuth:  jwtAuth,
		mailer:   mailer,
		sessions: sessions,
	}
}

// RegisterInput is the body of a registration request
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by a successful login
type AuthResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Register creates an unconfirmed account and mails its confirmation link
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if input.Name == "" {
		return nil, apierrors.Validation("Name is required")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return nil, apierrors.Validation("Valid email address is required")
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, apierrors.Validation(err.Error())
	}

	hash, err := s.jwtAuth.HashPassword(input.Password)
	if err != nil {
		return nil, apierrors.Internal("Failed to create account", err)
	}
	token, err := auth.GenerateOneTimeToken()
	if err != nil {
		return nil, apierrors.Internal("Failed to create account", err)
	}

	user := &models.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Token:        token,
		Confirmed:    false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apierrors.Conflict("User already registered")
		}
		return nil, apierrors.Internal("Failed to create account", err)
	}

	log.Printf("[AUTH] User registered: %s (%s)", user.Email, user.ID.Hex())
	s.notify(templateConfirm, user)
	return user.Projected(), nil
}

// Authenticate checks credentials of a confirmed account and issues a session token
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err, "User does not exist", "Failed to log in")
	}
	if !user.Confirmed {
		return nil, apierrors.Forbidden("Your account has not been confirmed")
	}

	valid, err := s.jwtAuth.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, apierrors.Internal("Failed to log in", err)
	}
	if !valid {
		log.Printf("[AUTH] Failed login attempt for user: %s", email)
		return nil, apierrors.Forbidden("Incorrect password")
	}

	token, err := s.jwtAuth.GenerateToken(user.ID.Hex())
	if err != nil {
		return nil, apierrors.Internal("Failed to log in", err)
	}
	return &AuthResult{
		ID:    user.ID.Hex(),
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	}, nil
}

// Confirm marks the account holding token as confirmed and clears the token
func (s *AccountService) Confirm(ctx context.Context, token string) error {
	user, err := s.users.FindByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return storeError(err, "Invalid token", "Failed to confirm account")
	}
	user.Confirmed = true
	user.Token = ""
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "Invalid token", "Failed to confirm account")
	}
	s.forget(user)
	log.Printf("[AUTH] User confirmed: %s", user.ID.Hex())
	return nil
}

// ForgotPassword reissues the one-time token and mails the reset link
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return storeError(err, "User does not exist", "Failed to start password reset")
	}
	token, err := auth.GenerateOneTimeToken()
	if err != nil {
		return apierrors.Internal("Failed to start password reset", err)
	}
	user.Token = token
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "User does not exist", "Failed to start password reset")
	}

	s.notify(templateReset, user)
	return nil
}

// CheckResetToken reports whether token still belongs to an account
func (s *AccountService) CheckResetToken(ctx context.Context, token string) error {
	if _, err := s.users.FindByToken(ctx, strings.TrimSpace(token)); err != nil {
		return storeError(err, "Invalid token", "Failed to check token")
	}
	return nil
}

// ResetPassword replaces the password of the account holding token and clears the token
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return apierrors.Validation(err.Error())
	}
	user, err := s.users.FindByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return storeError(err, "Invalid token", "Failed to reset password")
	}
	hash, err := s.jwtAuth.HashPassword(password)
	if err != nil {
		return apierrors.Internal("Failed to reset password", err)
	}
	user.PasswordHash = hash
	user.Token = ""
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "Invalid token", "Failed to reset password")
	}
	s.forget(user)
	log.Printf("[AUTH] Password reset for user: %s", user.ID.Hex())
	return nil
}

// notify sends mail in the background; failures are only logged
func (s *AccountService) notify(kind string, user *models.User) {
	if s.mailer == nil {
		return
	}
	recipient := *user
	go func() {
		var err error
		if kind == templateReset {
			err = s.mailer.SendPasswordReset(&recipient)
		} else {
			err = s.mailer.SendConfirmation(&recipient)
		}
		if err != nil {
			log.Printf("[MAIL] Failed to send %s mail to %s: %v", kind, recipient.Email, err)
		}
	}()
}

func (s *AccountService) forget(user *models.User) {
	if s.sessions != nil {
		s.sessions.Forget(user.ID.Hex())
	}
}
