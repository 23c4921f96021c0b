package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"accounts/internal/common"
	"accounts/internal/models"
	"accounts/internal/repositories"
	"accounts/pkg/mailer"

	"github.com/go-playground/validator/v10"
)

// AccountOptions holds the settings AccountService needs from configuration.
type AccountOptions struct {
	AppName     string
	FrontendURL string
	EmailFrom   string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// AccountService handles registration, login, profile and password operations.
type AccountService struct {
	users    repositories.UserRepository
	hasher   PasswordHasher
	tokens   *TokenService
	resets   *ResetTokenService
	sender   mailer.Sender
	validate *validator.Validate
	opts     AccountOptions
	now      func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	users repositories.UserRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	resets *ResetTokenService,
	sender mailer.Sender,
	opts AccountOptions,
) *AccountService {
	return &AccountService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		resets:   resets,
		sender:   sender,
		validate: validator.New(),
		opts:     opts,
		now:      time.Now,
	}
}

// Register creates a user with a hashed password and logs them in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in, registerMessages); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, common.Conflict("Email has already been registered")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, common.ServerError("Could not register user", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, common.ServerError("Could not register user", err)
	}

	now := s.now()
	user := &models.User{
		Name:      in.Name,
		Email:     in.Email,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user.ApplyDefaults()

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, common.Conflict("Email has already been registered")
		}
		return nil, common.ServerError("Could not register user", err)
	}
	log.Printf("User %s registered", user.ID)

	return s.issueSession(user)
}

// Login checks credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in, loginMessages); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NotFound("User not found, please signup")
		}
		return nil, common.ServerError("Could not log in", err)
	}

	if !s.hasher.Verify(in.Password, user.Password) {
		return nil, common.Unauthorized("Invalid email or password")
	}

	return s.issueSession(user)
}

func (s *AccountService) issueSession(user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, common.ServerError("Could not create session", err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves the user behind a session token. Every failure is
// reported as Unauthenticated so callers cannot tell the reasons apart.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.Unauthenticated("Not authorized, please login")
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, common.Wrap(common.ErrUnauthenticated, "Not authorized, please login", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.Unauthenticated("Not authorized, please login")
		}
		return nil, common.ServerError("Could not verify session", err)
	}
	return user, nil
}

// LoginStatus reports whether token is a valid session token. It never fails.
func (s *AccountService) LoginStatus(token string) bool {
	if token == "" {
		return false
	}
	_, err := s.tokens.Verify(token)
	return err == nil
}

// GetProfile returns the user with the given ID.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NotFound("User not found")
		}
		return nil, common.ServerError("Could not load user", err)
	}
	return user, nil
}

// UpdateProfile merges the provided fields into the user. Only profile fields
// are written back; email and password cannot change here.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.User, error) {
	if err := validateInput(s.validate, in, updateProfileMessages); err != nil {
		return nil, err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, common.BadRequest("Name cannot be empty")
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}
	if in.Photo != nil {
		user.Photo = strings.TrimSpace(*in.Photo)
	}
	user.UpdatedAt = s.now()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NotFound("User not found")
		}
		return nil, common.ServerError("Could not update user", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the old one. Pending
// reset tokens are revoked afterwards.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := validateInput(s.validate, in, changePasswordMessages); err != nil {
		return err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(in.OldPassword, user.Password) {
		return common.Unauthorized("Old password is incorrect")
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return common.ServerError("Could not change password", err)
	}
	if err := s.users.SetPassword(ctx, user.ID, hashed, s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return common.NotFound("User not found")
		}
		return common.ServerError("Could not change password", err)
	}

	if err := s.resets.Revoke(ctx, user.ID); err != nil {
		log.Printf("Failed to revoke reset tokens for user %s: %v", user.ID, err)
	}
	return nil
}

// ForgotPassword issues a reset token and emails the reset link to the user.
func (s *AccountService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(s.validate, in, forgotPasswordMessages); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return common.NotFound("User does not exist")
		}
		return common.ServerError("Could not start password reset", err)
	}

	rawToken, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return common.ServerError("Email not sent, please try again", err)
	}

	msg, err := mailer.ResetPasswordMessage(mailer.ResetPasswordData{
		AppName:  s.opts.AppName,
		UserName: user.Name,
		ResetURL: s.opts.FrontendURL + "/resetpassword/" + rawToken,
		ValidFor: formatValidity(s.resets.TTL()),
	})
	if err != nil {
		return common.ServerError("Email not sent, please try again", err)
	}
	msg.To = user.Email
	msg.From = s.opts.EmailFrom

	if err := s.sender.Send(ctx, msg); err != nil {
		log.Printf("Failed to send reset email to user %s: %v", user.ID, err)
		return common.ServerError("Email not sent, please try again", err)
	}
	log.Printf("Reset email sent to user %s", user.ID)
	return nil
}

// ResetPassword sets a new password using a reset token from ForgotPassword.
func (s *AccountService) ResetPassword(ctx context.Context, rawToken string, in ResetPasswordInput) error {
	if err := validateInput(s.validate, in, resetPasswordMessages); err != nil {
		return err
	}

	err := s.resets.Consume(ctx, rawToken, in.Password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrResetTokenNotFound), errors.Is(err, ErrResetTokenExpired):
		return common.Wrap(common.ErrNotFound, "Invalid or expired token", err)
	case errors.Is(err, ErrPasswordLength):
		return common.Wrap(common.ErrBadRequest, msgPasswordLength, err)
	default:
		return common.ServerError("Could not reset password", err)
	}
}

func formatValidity(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hour(s)", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
