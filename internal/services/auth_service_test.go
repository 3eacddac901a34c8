package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	viper.Set("jwt.secret_key", "test-secret-key")
	viper.Set("jwt.expiry_minutes", 30)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
	os.Exit(m.Run())
}

func TestPasswordHashing(t *testing.T) {
	t.Run("hash and verify roundtrip", func(t *testing.T) {
		digest, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.NotEmpty(t, digest)
		assert.NotContains(t, digest, "password123")
		assert.True(t, verifyPassword("password123", digest))
	})

	t.Run("wrong password fails", func(t *testing.T) {
		digest, err := hashPassword("password123")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("wrong-password", digest))
	})

	t.Run("salts differ between hashes", func(t *testing.T) {
		a, _ := hashPassword("password123")
		b, _ := hashPassword("password123")
		assert.NotEqual(t, a, b)
	})

	t.Run("malformed digest rejected", func(t *testing.T) {
		assert.False(t, verifyPassword("password123", "not-a-digest"))
		assert.False(t, verifyPassword("password123", "a$b$c"))
		assert.False(t, verifyPassword("password123", "!!$!!"))
	})
}

func TestGenerateToken(t *testing.T) {
	tokenString, err := generateToken("vmanrique")
	assert.NoError(t, err)
	assert.NotEmpty(t, tokenString)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	assert.NoError(t, err)
	assert.True(t, token.Valid)

	subject, err := token.Claims.GetSubject()
	assert.NoError(t, err)
	assert.Equal(t, "vmanrique", subject)

	expiry, err := token.Claims.GetExpirationTime()
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiry.Time, time.Minute)
}

func TestAuthService_Token(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("valid credentials issue a token", func(t *testing.T) {
		digest, err := hashPassword("password123")
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, first_name, last_name, disabled, password FROM users WHERE username = \\$1").
			WithArgs("vmanrique").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "disabled", "password"}).
				AddRow(7, "vmanrique", "v@example.com", "Victor", "Manrique", false, digest))

		body := `{"username":"vmanrique","password":"password123"}`
		w := httptest.NewRecorder()
		service.Token(w, httptest.NewRequest("POST", "/auth/token", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "access_token")
		assert.Contains(t, w.Body.String(), `"username":"vmanrique"`)
		assert.Contains(t, w.Body.String(), `"full_name":"Victor Manrique"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user and wrong password collapse to one outcome", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, username, email, first_name, last_name, disabled, password FROM users WHERE username = \\$1").
			WithArgs("ghost").
			WillReturnError(fmt.Errorf("sql: no rows in result set"))

		body := `{"username":"ghost","password":"whatever"}`
		w := httptest.NewRecorder()
		service.Token(w, httptest.NewRequest("POST", "/auth/token", strings.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Incorrect username or password")
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

		digest, _ := hashPassword("password123")
		mock.ExpectQuery("SELECT id, username, email, first_name, last_name, disabled, password FROM users WHERE username = \\$1").
			WithArgs("vmanrique").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "disabled", "password"}).
				AddRow(7, "vmanrique", "v@example.com", "Victor", "Manrique", false, digest))

		body = `{"username":"vmanrique","password":"wrong"}`
		w = httptest.NewRecorder()
		service.Token(w, httptest.NewRequest("POST", "/auth/token", strings.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Incorrect username or password")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing fields rejected before any lookup", func(t *testing.T) {
		body := `{"username":"vmanrique"}`
		w := httptest.NewRecorder()
		service.Token(w, httptest.NewRequest("POST", "/auth/token", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("token is blacklisted until expiry", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		redisMock.ExpectSet("blacklist:some-token", "1", 30*time.Minute).SetVal("OK")

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()
		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Logout successful")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("logout without redis still succeeds", func(t *testing.T) {
		service := NewAuthService(db, nil)

		r := httptest.NewRequest("POST", "/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()
		service.Logout(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		service := NewAuthService(db, nil)

		w := httptest.NewRecorder()
		service.Logout(w, httptest.NewRequest("POST", "/auth/logout", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCurrentUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	t.Run("resolves the token subject", func(t *testing.T) {
		expectCurrentUser(mock)

		user, err := CurrentUser(db, authedRequest("GET", "/accounts", ""))
		assert.NoError(t, err)
		assert.Equal(t, 7, user.ID)
		assert.Equal(t, "vmanrique", user.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing context value is unauthenticated", func(t *testing.T) {
		_, err := CurrentUser(db, httptest.NewRequest("GET", "/accounts", nil))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("disabled user is rejected", func(t *testing.T) {
		mock.ExpectQuery(currentUserQuery).
			WithArgs("vmanrique").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "disabled", "created_at", "updated_at"}).
				AddRow(7, "vmanrique", "v@example.com", "Victor", "Manrique", true, time.Now(), nil))

		_, err := CurrentUser(db, authedRequest("GET", "/accounts", ""))
		assert.ErrorIs(t, err, ErrInactiveUser)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSendAuthError(t *testing.T) {
	t.Run("inactive user maps to 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendAuthError(w, ErrInactiveUser)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Inactive user")
	})

	t.Run("anything else maps to 401 with a challenge", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendAuthError(w, ErrUnauthenticated)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Contains(t, w.Body.String(), "Could not validate credentials")
	})
}
