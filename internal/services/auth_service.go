package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/financii/backend/internal/middleware"
	"github.com/financii/backend/internal/models"
)

// Identity errors.
var (
	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrInactiveUser    = errors.New("inactive user")
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

// TokenRequest represents the token issuance payload
// @Description Credentials for token issuance
type TokenRequest struct {
	Username string `json:"username" validate:"required" example:"vmanrique"`
	Password string `json:"password" validate:"required" example:"password123"`
}

// TokenUser is the user summary embedded in the token response.
type TokenUser struct {
	ID       int    `json:"id" example:"1"`
	Username string `json:"username" example:"vmanrique"`
	Email    string `json:"email" example:"user@example.com"`
	FullName string `json:"full_name" example:"Victor Manrique"`
}

// TokenResponse represents the authentication response
// @Description Authentication response structure
type TokenResponse struct {
	User        TokenUser `json:"user"`
	AccessToken string    `json:"access_token"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// Token handles credential verification and token issuance
// @Summary Issue access token
// @Description Verify username/password and return a signed access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Credentials"
// @Success 200 {object} TokenResponse "Token issued"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Incorrect username or password"
// @Router /auth/token [post]
func (s *AuthService) Token(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Token request from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TokenRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Token request failed - invalid body: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Username and password are required", http.StatusBadRequest, err)
		return
	}

	user, err := s.authenticate(req.Username, req.Password)
	if err != nil {
		// Unknown username and wrong password collapse into one outcome.
		log.Printf("[AUTH] Authentication failed for username: %s", req.Username)
		w.Header().Set("WWW-Authenticate", "Bearer")
		SendErrorResponse(w, "Incorrect username or password", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateToken(user.Username)
	if err != nil {
		log.Printf("[AUTH] Token generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Token issued for user %d", user.ID)
	SendJSON(w, http.StatusOK, TokenResponse{
		User: TokenUser{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			FullName: fmt.Sprintf("%s %s", user.FirstName, user.LastName),
		},
		AccessToken: token,
	})
}

// Logout blacklists the presented token until its expiry
// @Summary Logout
// @Description Revoke the presented access token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_minutes")) * time.Minute
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	SendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// authenticate looks up a user by username and verifies the password digest.
func (s *AuthService) authenticate(username, password string) (*models.User, error) {
	var user models.User
	var digest string
	err := s.db.QueryRow(`
		SELECT id, username, email, first_name, last_name, disabled, password
		FROM users WHERE username = $1`,
		username).Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.Disabled, &digest)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if !verifyPassword(password, digest) {
		return nil, ErrUnauthenticated
	}

	return &user, nil
}

// CurrentUser re-resolves the authenticated user from the token subject
// placed in the request context by the auth middleware.
func CurrentUser(db *sql.DB, r *http.Request) (*models.User, error) {
	username, ok := r.Context().Value(middleware.CtxUsername).(string)
	if !ok || username == "" {
		return nil, ErrUnauthenticated
	}

	var user models.User
	err := db.QueryRow(`
		SELECT id, username, email, first_name, last_name, disabled, created_at, updated_at
		FROM users WHERE username = $1`,
		username).Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.Disabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if user.Disabled {
		return nil, ErrInactiveUser
	}
	return &user, nil
}

// SendAuthError maps identity errors onto the error envelope.
func SendAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInactiveUser) {
		SendErrorResponse(w, "Inactive user", http.StatusBadRequest, nil)
		return
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	SendErrorResponse(w, "Could not validate credentials", http.StatusUnauthorized, nil)
}

func generateToken(username string) (string, error) {
	expiry := time.Duration(viper.GetInt("jwt.expiry_minutes")) * time.Minute
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, digest string) bool {
	parts := strings.Split(digest, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
