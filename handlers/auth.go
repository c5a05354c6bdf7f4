package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/investflow/config"
	"github.com/yourusername/investflow/middleware"
	"github.com/yourusername/investflow/models"
	"github.com/yourusername/investflow/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// Ugandan MSISDNs only: the platform launches in a single market.
	phonePattern = regexp.MustCompile(`^\+256\d{9}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const (
	minPasswordLength    = 8
	verificationTokenTTL = 24 * time.Hour
	sessionTokenTTL      = 24 * time.Hour
)

type AuthHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	mailer utils.EmailSender
	logger *zap.Logger
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, mailer utils.EmailSender, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:     db,
		cfg:    cfg,
		mailer: mailer,
		logger: logger,
	}
}

type RegisterRequest struct {
	Phone           string `json:"phone" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	ReferralCode    string `json:"referralCode"`
}

// Register creates an unverified account and sends the verification email.
// Email delivery is best-effort: a failed send is reported in the response
// flag but never rolls back the account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if !phonePattern.MatchString(req.Phone) {
		respondError(c, http.StatusBadRequest, "phone must be in the format +256XXXXXXXXX")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		respondError(c, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(c, http.StatusBadRequest, "password must be at least 8 characters long")
		return
	}
	if req.Password != req.ConfirmPassword {
		respondError(c, http.StatusBadRequest, "passwords do not match")
		return
	}

	// Phone is checked before email so a dual collision reports the phone.
	var existing models.User
	err := h.db.Where("phone = ?", req.Phone).First(&existing).Error
	if err == nil {
		respondError(c, http.StatusConflict, "an account with this phone number already exists")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusInternalServerError, "failed to check existing accounts")
		return
	}

	err = h.db.Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		respondError(c, http.StatusConflict, "an account with this email already exists")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusInternalServerError, "failed to check existing accounts")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to process password")
		return
	}

	now := time.Now()
	user := models.User{
		Phone:              req.Phone,
		Email:              req.Email,
		PasswordHash:       string(hash),
		VerificationToken:  uuid.NewString(),
		VerificationSentAt: &now,
		ReferralCode:       req.ReferralCode,
	}

	if err := h.db.Create(&user).Error; err != nil {
		// Unique indexes on phone and email close the check-then-insert race.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "an account with this phone number or email already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to create account")
		return
	}

	emailSent := h.mailer.Send(
		user.Email,
		"Verify your email address",
		utils.VerificationEmailBody(h.cfg.AppBaseURL, user.VerificationToken),
	)
	if !emailSent {
		h.logger.Warn("verification email not sent", zap.String("email", user.Email))
	}

	respondOK(c, http.StatusCreated, "account created, please verify your email", gin.H{
		"user":      user,
		"emailSent": emailSent,
	})
}

// VerifyEmail consumes a verification token. Consumption is a conditional
// update keyed on the token itself, so concurrent attempts with the same
// token succeed at most once.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusBadRequest, "verification token is required")
		return
	}

	var user models.User
	if err := h.db.Where("verification_token = ?", token).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "invalid or already used verification token")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to look up verification token")
		return
	}

	if user.VerificationSentAt == nil || time.Since(*user.VerificationSentAt) > verificationTokenTTL {
		respondError(c, http.StatusBadRequest, "verification link has expired, please request a new one")
		return
	}

	now := time.Now()
	result := h.db.Model(&models.User{}).
		Where("verification_token = ? AND is_verified = ?", token, false).
		Updates(map[string]interface{}{
			"verification_token": "",
			"is_verified":        true,
			"verified_at":        now,
		})
	if result.Error != nil {
		respondError(c, http.StatusInternalServerError, "failed to verify email")
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, "invalid or already used verification token")
		return
	}

	user.IsVerified = true
	user.VerificationToken = ""
	user.VerifiedAt = &now

	respondOK(c, http.StatusOK, "email verified successfully", gin.H{"user": user})
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and mints a session token. Unknown phone and
// wrong password answer identically.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !phonePattern.MatchString(req.Phone) {
		respondError(c, http.StatusBadRequest, "phone must be in the format +256XXXXXXXXX")
		return
	}

	var user models.User
	if err := h.db.Where("phone = ?", req.Phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "invalid phone number or password")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to look up account")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "invalid phone number or password")
		return
	}

	if !user.IsVerified {
		respondError(c, http.StatusForbidden, "email address is not verified")
		return
	}

	accessToken, err := middleware.GenerateToken(user.ID, user.Phone, h.cfg.JWTSecret, sessionTokenTTL)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate access token")
		return
	}

	respondOK(c, http.StatusOK, "login successful", gin.H{
		"user":         user,
		"access_token": accessToken,
	})
}

type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResendVerification rotates the verification token and resends the email.
// Unlike registration, a failed send here is an error: the caller asked for
// exactly one thing and it did not happen.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "no account found with this email")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to look up account")
		return
	}

	if user.IsVerified {
		respondError(c, http.StatusBadRequest, "email is already verified")
		return
	}

	// A fresh token invalidates any outstanding one.
	token := uuid.NewString()
	now := time.Now()
	if err := h.db.Model(&user).Updates(map[string]interface{}{
		"verification_token":   token,
		"verification_sent_at": now,
	}).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to issue a new verification token")
		return
	}

	if !h.mailer.Send(user.Email, "Verify your email address", utils.VerificationEmailBody(h.cfg.AppBaseURL, token)) {
		h.logger.Error("verification email not sent", zap.String("email", user.Email))
		respondError(c, http.StatusInternalServerError, "failed to send verification email")
		return
	}

	respondOK(c, http.StatusOK, "verification email sent", gin.H{"emailSent": true})
}
