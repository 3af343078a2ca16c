package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for tokens that fail verification
	ErrInvalidToken = errors.New("invalid token")
)

// AuthService registers users and issues and verifies access tokens
type AuthService struct {
	Users  databases.UserDatabase
	Config config.AuthConfig
}

// NewAuthService wires the user store and auth settings
func NewAuthService(users databases.UserDatabase, cfg config.AuthConfig) *AuthService {
	return &AuthService{Users: users, Config: cfg}
}

// RegisterInput is a self service sign up
type RegisterInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Email       string          `json:"email" validate:"required,email,max=254"`
	Password    string          `json:"password" validate:"required,min=8,max=72"`
	Role        models.UserRole `json:"role" validate:"omitempty,oneof=citizen official community"`
	Designation string          `json:"designation" validate:"max=100"`
	Department  string          `json:"department" validate:"max=200"`
}

// Register creates an account. The team lead designation grants admin
// rights, so it is only given out through the seed-admin command.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(in.Designation), models.DesignationTeamLead) {
		return nil, apierrors.Validation("designation", "team-lead accounts are created by an administrator")
	}
	role := in.Role
	if role == "" {
		role = models.UserCitizen
	}
	if role != models.UserOfficial {
		in.Designation, in.Department = "", ""
	}
	return s.CreateUser(ctx, in.Name, in.Email, in.Password, role, in.Designation, in.Department)
}

// CreateUser hashes the password and stores the user. A taken email is a conflict.
func (s *AuthService) CreateUser(ctx context.Context, name, email, password string, role models.UserRole, designation, department string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierrors.Internal("hash password", err)
	}
	at := now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         role,
		Designation:  designation,
		Department:   department,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := s.Users.Insert(ctx, user); err != nil {
		return nil, apierrors.Internal("create user", err)
	}
	zap.S().Infow("user registered", "user", user.ID.Hex(), "role", user.Role)
	return &user, nil
}

// Authenticate checks an email and password pair
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, apierrors.Internal("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// PrincipalFor derives the caller identity, including admin rights
func (s *AuthService) PrincipalFor(user *models.User) models.Principal {
	admin := user.Role == models.UserOfficial &&
		(s.Config.IsAdminEmail(user.Email) || user.Designation == models.DesignationTeamLead)
	return models.Principal{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		IsAdmin: admin,
	}
}

// Token is a signed access token
type Token struct {
	AccessToken string           `json:"accessToken"`
	TokenType   string           `json:"tokenType"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	Principal   models.Principal `json:"principal"`
}

// IssueToken signs an HS256 token for user
func (s *AuthService) IssueToken(user *models.User) (*Token, error) {
	if s.Config.JWTSecret == "" {
		return nil, apierrors.Internal("issue token", errors.New("JWT_SECRET is not configured"))
	}
	p := s.PrincipalFor(user)
	issued := time.Now().UTC()
	expires := issued.Add(s.Config.TokenTTL)
	claims := jwt.MapClaims{
		"sub":   p.UserID.Hex(),
		"email": p.Email,
		"role":  string(p.Role),
		"admin": p.IsAdmin,
		"typ":   "access",
		"iat":   issued.Unix(),
		"exp":   expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return nil, apierrors.Internal("issue token", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires, Principal: p}, nil
}

// ParseToken verifies a token and returns the principal it names
func (s *AuthService) ParseToken(token string) (*models.Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.Config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, _ := claims["sub"].(string)
	id, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	admin, _ := claims["admin"].(bool)
	return &models.Principal{
		UserID:  id,
		Email:   email,
		Role:    models.UserRole(role),
		IsAdmin: admin,
	}, nil
}

// Me returns the stored user behind a principal
func (s *AuthService) Me(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("current user", err)
	}
	return user, nil
}
