package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
)

const (
	BcryptCost = 12

	refreshTokenTTL  = 7 * 24 * time.Hour
	verifyTokenTTL   = 24 * time.Hour
	resetTokenTTL    = time.Hour
	resendCooldown   = 60 * time.Second
	resetCooldown    = 60 * time.Second
	accessTokenTTLIn = 900
)

func refreshKey(token string) string     { return "refresh:" + token }
func verifyKey(token string) string      { return "email_verify:" + token }
func resetKey(token string) string       { return "password_reset:" + token }
func resendLimitKey(id uuid.UUID) string { return "resend_limit:" + id.String() }
func resetLimitKey(id uuid.UUID) string  { return "reset_limit:" + id.String() }

type AuthService struct {
	userRepo *repository.UserRepo
	redis    *redis.Client
	jwt      *middleware.JWTAuth
	email    *EmailService
	logger   *zap.Logger
}

func NewAuthService(userRepo *repository.UserRepo, redisClient *redis.Client, jwt *middleware.JWTAuth, email *EmailService, logger *zap.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		redis:    redisClient,
		jwt:      jwt,
		email:    email,
		logger:   logger,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateRegistration(req models.RegisterRequest) map[string]string {
	fieldErrors := make(map[string]string)

	if req.FullName == "" {
		fieldErrors["full_name"] = "Full name is required"
	}
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := ValidatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	return fieldErrors
}

// Register creates an unverified account with its profile and default
// settings, and mails a verification link.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	if fieldErrors := validateRegistration(req); len(fieldErrors) > 0 {
		return nil, "", &ValidationError{Fields: fieldErrors}
	}

	_, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, "", &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		IsVerified:   false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	if err := s.userRepo.CreateProfile(ctx, user.ID); err != nil {
		s.logger.Warn("failed to create profile", zap.Stringer("user_id", user.ID), zap.Error(err))
	}
	if err := s.userRepo.CreateSettings(ctx, user.ID); err != nil {
		s.logger.Warn("failed to create settings", zap.Stringer("user_id", user.ID), zap.Error(err))
	}

	token, err := generateToken(32)
	if err != nil {
		return nil, "", err
	}

	if err := s.redis.Set(ctx, verifyKey(token), user.ID.String(), verifyTokenTTL).Err(); err != nil {
		return nil, "", fmt.Errorf("failed to store verification token: %w", err)
	}

	go s.mail("verification", func() error { return s.email.SendVerificationEmail(user.Email, token) })

	return user, token, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.AuthTokens, error) {
	userIDStr, err := s.redis.Get(ctx, verifyKey(token)).Result()
	if err != nil {
		return nil, &NotFoundError{Message: "Invalid or expired verification token"}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	if err := s.userRepo.VerifyEmail(ctx, userID); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, verifyKey(token))

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if !user.IsVerified {
		return nil, &ForbiddenError{Message: "Please verify your email before signing in."}
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.Stringer("user_id", user.ID), zap.Error(err))
	}

	return s.issueTokens(ctx, user)
}

// RefreshToken rotates a refresh token: the old one is consumed.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	userIDStr, err := s.redis.GetDel(ctx, refreshKey(refreshToken)).Result()
	if err != nil {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.redis.Del(ctx, refreshKey(refreshToken)).Err()
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", &NotFoundError{Message: "Email not found"}
	}

	if user.IsVerified {
		return "", &ConflictError{Message: "Email is already verified"}
	}

	if exists, _ := s.redis.Exists(ctx, resendLimitKey(user.ID)).Result(); exists > 0 {
		return "", &RateLimitError{Message: "Please wait 60 seconds before requesting another verification email"}
	}

	token, err := generateToken(32)
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, verifyKey(token), user.ID.String(), verifyTokenTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store verification token: %w", err)
	}
	s.redis.Set(ctx, resendLimitKey(user.ID), "1", resendCooldown)

	go s.mail("verification", func() error { return s.email.SendVerificationEmail(user.Email, token) })

	return token, nil
}

// ForgotPassword mails a one-hour reset link. Unknown addresses succeed
// silently so the endpoint does not reveal which emails are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if !emailRegex.MatchString(email) {
		return &ValidationError{Fields: map[string]string{"email": "Invalid email format"}}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	if exists, _ := s.redis.Exists(ctx, resetLimitKey(user.ID)).Result(); exists > 0 {
		return &RateLimitError{Message: "Please wait 60 seconds before requesting another reset email"}
	}

	token, err := generateToken(32)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, resetKey(token), user.ID.String(), resetTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	s.redis.Set(ctx, resetLimitKey(user.ID), "1", resetCooldown)

	go s.mail("password reset", func() error { return s.email.SendPasswordResetEmail(user.Email, token) })

	return nil
}

// ResetPassword consumes a reset token and sets the new password. A reset
// also proves ownership of the address, so the account becomes verified.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := ValidatePassword(req.NewPassword); err != nil {
		return &ValidationError{Fields: map[string]string{"new_password": err.Error()}}
	}

	userIDStr, err := s.redis.GetDel(ctx, resetKey(req.Token)).Result()
	if err != nil {
		return &NotFoundError{Message: "Invalid or expired reset token"}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return fmt.Errorf("invalid user ID in token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return s.userRepo.VerifyEmail(ctx, userID)
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, refreshKey(refreshToken), user.ID.String(), refreshTokenTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    accessTokenTTLIn,
	}, nil
}

func (s *AuthService) mail(kind string, send func() error) {
	if err := send(); err != nil {
		s.logger.Error("failed to send email", zap.String("kind", kind), zap.Error(err))
	}
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func ValidatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
