package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/envutil"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// TokenPair is what login and refresh hand back to the client. The refresh
// token is opaque; the access token is a short-lived JWT.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type AuthService interface {
	Register(dbc dbctx.Context, in RegisterInput) (*types.User, error)
	Login(dbc dbctx.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error)
	Logout(dbc dbctx.Context, userID uuid.UUID) error
	// VerifyAccessToken validates a bearer JWT and returns the user id.
	VerifyAccessToken(tokenString string) (uuid.UUID, error)
}

type authService struct {
	log        *logger.Logger
	users      repos.UserRepo
	userTokens repos.UserTokenRepo
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(log *logger.Logger, users repos.UserRepo, userTokens repos.UserTokenRepo) AuthService {
	return &authService{
		log:        log.With("service", "AuthService"),
		users:      users,
		userTokens: userTokens,
		jwtSecret:  []byte(envutil.String("JWT_SECRET_KEY", "")),
		accessTTL:  time.Duration(envutil.Int("JWT_ACCESS_TTL_MINUTES", 30)) * time.Minute,
		refreshTTL: time.Duration(envutil.Int("JWT_REFRESH_TTL_HOURS", 24*14)) * time.Hour,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (as *authService) Register(dbc dbctx.Context, in RegisterInput) (*types.User, error) {
	email := normalizeEmail(in.Email)
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if len(in.Password) < 8 {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apierr.Validation(fmt.Errorf("invalid registration input"), missing)
	}

	exists, err := as.users.EmailExists(dbc, email)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("check email: %w", err))
	}
	if exists {
		return nil, apierr.Conflict(fmt.Errorf("email already registered"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &types.User{
		Email:     email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Tier:      types.TierFree,
	}
	created, err := as.users.Create(dbc, user)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create user: %w", err))
	}
	as.log.Info("User registered", "user_id", created.ID.String())
	return created, nil
}

func (as *authService) Login(dbc dbctx.Context, email, password string) (*types.User, *TokenPair, error) {
	email = normalizeEmail(email)
	user, err := as.users.GetByEmail(dbc, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid credentials"))
		}
		return nil, nil, apierr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	pair, err := as.mintTokens(dbc, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Refresh(dbc dbctx.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apierr.Unauthorized(fmt.Errorf("missing refresh token"))
	}
	stored, err := as.userTokens.GetByRefreshToken(dbc, refreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.Unauthorized(fmt.Errorf("invalid refresh token"))
		}
		return nil, apierr.Internal(err)
	}
	if stored.ExpiresAt.Before(time.Now()) {
		_ = as.userTokens.DeleteByUserID(dbc, stored.UserID)
		return nil, apierr.Unauthorized(fmt.Errorf("refresh token expired"))
	}
	user, err := as.users.GetByID(dbc, stored.UserID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return as.mintTokens(dbc, user)
}

func (as *authService) Logout(dbc dbctx.Context, userID uuid.UUID) error {
	if err := as.userTokens.DeleteByUserID(dbc, userID); err != nil {
		return apierr.Internal(fmt.Errorf("delete user tokens: %w", err))
	}
	return nil
}

// mintTokens rotates the user's session: any prior token row is replaced.
func (as *authService) mintTokens(dbc dbctx.Context, user *types.User) (*TokenPair, error) {
	if err := as.userTokens.DeleteByUserID(dbc, user.ID); err != nil {
		return nil, apierr.Internal(fmt.Errorf("rotate tokens: %w", err))
	}

	expiresAt := time.Now().Add(as.refreshTTL)
	access, err := as.signAccessToken(user)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("sign access token: %w", err))
	}
	refresh := uuid.New().String()

	if _, err := as.userTokens.Create(dbc, &types.UserToken{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return nil, apierr.Internal(fmt.Errorf("store tokens: %w", err))
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func (as *authService) signAccessToken(user *types.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"eml": user.Email,
		"iat": now.Unix(),
		"exp": now.Add(as.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.jwtSecret)
}

func (as *authService) VerifyAccessToken(tokenString string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid access token"))
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid token claims"))
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid token subject"))
	}
	return userID, nil
}
