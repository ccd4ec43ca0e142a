package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"finetune-console/internal/database"
	"finetune-console/pkg/api"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	DefaultTokenTTL    = 24 * time.Hour
	RememberMeTokenTTL = 7 * 24 * time.Hour
)

type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *AuthService) Register(r *http.Request) (any, error) {
	req, err := ParseRequest[api.RegisterRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		slog.Error("error checking username", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error registering user")
	}
	if count > 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "Username already exists")
	}

	if err := s.db.WithContext(ctx).Model(&database.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		slog.Error("error checking email", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error registering user")
	}
	if count > 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "Email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error registering user")
	}

	user := database.User{
		Id:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, CodedErrorf(http.StatusBadRequest, "Username or email already exists")
		}
		slog.Error("error creating user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error registering user")
	}

	slog.Info("registered user", "user_id", user.Id, "username", user.Username)
	return api.MessageResponse{Message: "User registered successfully"}, nil
}

func (s *AuthService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}

	var user database.User
	if err := s.db.WithContext(r.Context()).Where("username = ? OR email = ?", req.UsernameOrEmail, req.UsernameOrEmail).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusUnauthorized, "Incorrect username or password")
		}
		slog.Error("error loading user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error logging in")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, CodedErrorf(http.StatusUnauthorized, "Incorrect username or password")
	}

	ttl := s.ttl
	if req.RememberMe {
		ttl = RememberMeTokenTTL
	}

	token, err := s.IssueToken(user.Id, ttl)
	if err != nil {
		slog.Error("error signing token", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error logging in")
	}

	return api.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        convertUser(user),
	}, nil
}

func (s *AuthService) Me(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	return convertUser(user), nil
}

func (s *AuthService) IssueToken(userId uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userId.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) parseToken(token string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return id, nil
}

type userContextKey struct{}

// RequireUser rejects requests without a valid bearer token for an existing
// user and stores that user in the request context.
func (s *AuthService) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeError(w, CodedErrorf(http.StatusUnauthorized, "Not authenticated"))
			return
		}

		userId, err := s.parseToken(token)
		if err != nil {
			slog.Info("rejected bearer token", "error", err)
			writeError(w, CodedErrorf(http.StatusUnauthorized, "Could not validate credentials"))
			return
		}

		var user database.User
		if err := s.db.WithContext(r.Context()).First(&user, "id = ?", userId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, CodedErrorf(http.StatusUnauthorized, "User not found"))
				return
			}
			writeError(w, CodedError(http.StatusInternalServerError, fmt.Errorf("error loading user: %w", err)))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
	})
}

func UserFromContext(ctx context.Context) (database.User, error) {
	user, ok := ctx.Value(userContextKey{}).(database.User)
	if !ok {
		return database.User{}, CodedErrorf(http.StatusUnauthorized, "Not authenticated")
	}
	return user, nil
}
