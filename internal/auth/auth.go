package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goali/auctions/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidRole        = errors.New("invalid role specified")
	ErrInvalidInput       = errors.New("invalid input")
)

// UserStore persists user profiles
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id uuid.UUID, role string) error
}

// Identity is the resolved caller of a request
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role
func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

// AuthService handles user authentication
type AuthService struct {
	Users  UserStore
	secret []byte
	ttl    time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{Users: users, secret: []byte(secret), ttl: ttl}
}

// TTL is how long issued tokens stay valid
func (s *AuthService) TTL() time.Duration { return s.ttl }

// Register creates a new client user with hashed password
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*models.User, error) {
	return s.register(ctx, email, password, fullName, models.RoleClient)
}

// RegisterAdmin creates a user holding the admin role
func (s *AuthService) RegisterAdmin(ctx context.Context, email, password, fullName string) (*models.User, error) {
	return s.register(ctx, email, password, fullName, models.RoleAdmin)
}

func (s *AuthService) register(ctx context.Context, email, password, fullName, role string) (*models.User, error) {
	// Validate input
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(email) > 254 {
		return nil, fmt.Errorf("%w: email too long (max 254 characters)", ErrInvalidInput)
	}
	if len(password) > 72 {
		return nil, fmt.Errorf("%w: password too long (max 72 characters)", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.Users.CreateUser(ctx, &models.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		PasswordHash: string(hashedPassword),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.Users.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(user)
}

// IssueToken signs a token for user
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// ParseToken verifies a token and returns the identity it carries
func (s *AuthService) ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return Identity{UserID: userID, Email: email, Role: role}, nil
}

// Resolve parses a token and refreshes the role from the user store, so role
// changes apply without re-login
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (Identity, error) {
	id, err := s.ParseToken(tokenString)
	if err != nil {
		return Identity{}, err
	}
	user, err := s.Users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	id.Role = user.Role
	id.Email = user.Email
	return id, nil
}

// ListUsers returns all users, newest first
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.Users.ListUsers(ctx)
}

// UpdateRole switches a user between client and admin
func (s *AuthService) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	if role != models.RoleAdmin && role != models.RoleClient {
		return ErrInvalidRole
	}
	return s.Users.UpdateUserRole(ctx, id, role)
}

type ctxKey struct{}

// WithIdentity attaches id to ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by the auth middleware
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != uuid.Nil
}
