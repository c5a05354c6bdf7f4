package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/yourusername/investflow/config"
	"github.com/yourusername/investflow/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.User{}, &models.Investment{}, &models.Transaction{}))
	return db
}

type MockEmailSender struct {
	SendFunc func(to, subject, htmlBody string) bool
}

func (m *MockEmailSender) Send(to, subject, htmlBody string) bool {
	return m.SendFunc(to, subject, htmlBody)
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	var env envelope
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newAuthRouter(db *gorm.DB, mailer *MockEmailSender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWTSecret: "test-secret", AppBaseURL: "http://localhost:8080"}
	handler := NewAuthHandler(db, cfg, mailer, zap.NewNop())

	router := gin.New()
	router.POST("/api/auth/register", handler.Register)
	router.GET("/api/auth/verify-email", handler.VerifyEmail)
	router.POST("/api/auth/login", handler.Login)
	router.POST("/api/auth/resend-verification", handler.ResendVerification)
	return router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, db *gorm.DB, phone, email, password string, verified bool, token string) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	assert.NoError(t, err)

	now := time.Now()
	user := models.User{
		Phone:        phone,
		Email:        email,
		PasswordHash: string(hash),
		IsVerified:   verified,
	}
	if verified {
		user.VerifiedAt = &now
	} else {
		user.VerificationToken = token
		user.VerificationSentAt = &now
	}
	assert.NoError(t, db.Create(&user).Error)
	return user
}

func TestRegister(t *testing.T) {
	okMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return true }}

	validBody := func() RegisterRequest {
		return RegisterRequest{
			Phone:           "+256700000001",
			Email:           "a@x.com",
			Password:        "secret123",
			ConfirmPassword: "secret123",
		}
	}

	t.Run("Valid Request", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		w := postJSON(router, "/api/auth/register", validBody())
		assert.Equal(t, http.StatusCreated, w.Code)

		env := decodeEnvelope(t, w)
		assert.True(t, env.Success)
		assert.Equal(t, true, env.Data["emailSent"])

		user := env.Data["user"].(map[string]interface{})
		assert.Equal(t, "+256700000001", user["phone"])
		assert.Equal(t, false, user["is_verified"])
		assert.NotContains(t, w.Body.String(), "password")
		assert.NotContains(t, w.Body.String(), "verification_token")

		var stored models.User
		assert.NoError(t, db.Where("phone = ?", "+256700000001").First(&stored).Error)
		assert.NotEmpty(t, stored.VerificationToken)
		assert.NotEqual(t, "secret123", stored.PasswordHash)
		assert.False(t, stored.IsVerified)
	})

	t.Run("Duplicate Phone", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		assert.Equal(t, http.StatusCreated, postJSON(router, "/api/auth/register", validBody()).Code)

		// Same phone, different email still conflicts on the phone.
		body := validBody()
		body.Email = "other@x.com"
		w := postJSON(router, "/api/auth/register", body)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "phone")
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		assert.Equal(t, http.StatusCreated, postJSON(router, "/api/auth/register", validBody()).Code)

		body := validBody()
		body.Phone = "+256700000002"
		w := postJSON(router, "/api/auth/register", body)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "email")
	})

	t.Run("Invalid Phone", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		body := validBody()
		body.Phone = "0700000001"
		w := postJSON(router, "/api/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Short Password", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		body := validBody()
		body.Password = "short"
		body.ConfirmPassword = "short"
		w := postJSON(router, "/api/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Password Mismatch", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		body := validBody()
		body.ConfirmPassword = "different123"
		w := postJSON(router, "/api/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Email Failure Does Not Roll Back", func(t *testing.T) {
		db := setupTestDB(t)
		failMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return false }}
		router := newAuthRouter(db, failMailer)

		w := postJSON(router, "/api/auth/register", validBody())
		assert.Equal(t, http.StatusCreated, w.Code)

		env := decodeEnvelope(t, w)
		assert.Equal(t, false, env.Data["emailSent"])

		var count int64
		db.Model(&models.User{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func TestVerifyEmail(t *testing.T) {
	okMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return true }}

	verify := func(router *gin.Engine, token string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/auth/verify-email?token="+token, nil)
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("One Shot Per Token", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", false, "token-1")

		w := verify(router, "token-1")
		assert.Equal(t, http.StatusOK, w.Code)

		var user models.User
		assert.NoError(t, db.Where("phone = ?", "+256700000001").First(&user).Error)
		assert.True(t, user.IsVerified)
		assert.Empty(t, user.VerificationToken)
		assert.NotNil(t, user.VerifiedAt)

		// Second attempt with the consumed token.
		w = verify(router, "token-1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Missing Token", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		w := verify(router, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown Token", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		w := verify(router, "never-issued")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		user := createUser(t, db, "+256700000001", "a@x.com", "secret123", false, "token-old")

		sentAt := time.Now().Add(-25 * time.Hour)
		assert.NoError(t, db.Model(&user).Update("verification_sent_at", sentAt).Error)

		w := verify(router, "token-old")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "expired")

		var stored models.User
		assert.NoError(t, db.Where("phone = ?", "+256700000001").First(&stored).Error)
		assert.False(t, stored.IsVerified)
	})
}

func TestLogin(t *testing.T) {
	okMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return true }}

	t.Run("Verified User", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", true, "")

		w := postJSON(router, "/api/auth/login", LoginRequest{Phone: "+256700000001", Password: "secret123"})
		assert.Equal(t, http.StatusOK, w.Code)

		env := decodeEnvelope(t, w)
		assert.NotEmpty(t, env.Data["access_token"])
		user := env.Data["user"].(map[string]interface{})
		assert.Equal(t, "a@x.com", user["email"])
	})

	t.Run("Wrong Password", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", true, "")

		w := postJSON(router, "/api/auth/login", LoginRequest{Phone: "+256700000001", Password: "wrong-pass"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Unknown Phone Answers Like Wrong Password", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", true, "")

		wWrong := postJSON(router, "/api/auth/login", LoginRequest{Phone: "+256700000001", Password: "wrong-pass"})
		wUnknown := postJSON(router, "/api/auth/login", LoginRequest{Phone: "+256700000009", Password: "secret123"})

		assert.Equal(t, http.StatusUnauthorized, wWrong.Code)
		assert.Equal(t, http.StatusUnauthorized, wUnknown.Code)
		assert.Equal(t, wWrong.Body.String(), wUnknown.Body.String())
	})

	t.Run("Unverified User", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", false, "token-1")

		w := postJSON(router, "/api/auth/login", LoginRequest{Phone: "+256700000001", Password: "secret123"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Missing Fields", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		w := postJSON(router, "/api/auth/login", map[string]string{"phone": "+256700000001"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestResendVerification(t *testing.T) {
	okMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return true }}

	t.Run("Rotates Token", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", false, "token-1")

		w := postJSON(router, "/api/auth/resend-verification", ResendVerificationRequest{Email: "a@x.com"})
		assert.Equal(t, http.StatusOK, w.Code)

		var user models.User
		assert.NoError(t, db.Where("email = ?", "a@x.com").First(&user).Error)
		assert.NotEmpty(t, user.VerificationToken)
		assert.NotEqual(t, "token-1", user.VerificationToken)

		// The superseded token no longer verifies.
		wOld := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/auth/verify-email?token=token-1", nil)
		router.ServeHTTP(wOld, req)
		assert.Equal(t, http.StatusNotFound, wOld.Code)

		// The fresh one does.
		wNew := httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/api/auth/verify-email?token="+user.VerificationToken, nil)
		router.ServeHTTP(wNew, req)
		assert.Equal(t, http.StatusOK, wNew.Code)
	})

	t.Run("Unknown Email", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)

		w := postJSON(router, "/api/auth/resend-verification", ResendVerificationRequest{Email: "nobody@x.com"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Already Verified", func(t *testing.T) {
		db := setupTestDB(t)
		router := newAuthRouter(db, okMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", true, "")

		w := postJSON(router, "/api/auth/resend-verification", ResendVerificationRequest{Email: "a@x.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var user models.User
		assert.NoError(t, db.Where("email = ?", "a@x.com").First(&user).Error)
		assert.True(t, user.IsVerified)
		assert.Empty(t, user.VerificationToken)
	})

	t.Run("Send Failure Is An Error", func(t *testing.T) {
		db := setupTestDB(t)
		failMailer := &MockEmailSender{SendFunc: func(to, subject, htmlBody string) bool { return false }}
		router := newAuthRouter(db, failMailer)
		createUser(t, db, "+256700000001", "a@x.com", "secret123", false, "token-1")

		w := postJSON(router, "/api/auth/resend-verification", ResendVerificationRequest{Email: "a@x.com"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
