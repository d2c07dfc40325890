package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/auth"
	"github.com/circuitsapp/circuits-backend/internal/common"
	"github.com/circuitsapp/circuits-backend/internal/email"
	"github.com/circuitsapp/circuits-backend/internal/httpapi/middleware"
	"github.com/circuitsapp/circuits-backend/internal/models"
	"github.com/circuitsapp/circuits-backend/internal/store/rabbitmq"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

type signupReq struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid signup payload")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{Email: req.Email, PasswordHash: hash}
	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe email already exists)")
		return
	}

	// Provision the profile out of band. Signup succeeds regardless; a lost
	// event only means the profile row shows up later or not at all.
	if h.Rabbit != nil {
		go func(ev rabbitmq.ProfileEvent) {
			if err := h.Rabbit.PublishProfileEvent(context.Background(), ev); err != nil {
				log.Printf("[Signup] profile event publish failed user=%d err=%v", ev.UserID, err)
			}
		}(rabbitmq.ProfileEvent{UserID: user.ID, DisplayName: req.DisplayName})
	} else {
		log.Printf("[Signup] rabbit unavailable, skipping profile event user=%d", user.ID)
	}

	accessToken, refreshToken, err := h.issueTokens(c.Request.Context(), user.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to issue tokens")
		return
	}

	common.OK(c, gin.H{
		"user":          gin.H{"id": user.ID, "email": user.Email, "created_at": user.CreatedAt},
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid login payload")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", req.Email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := h.issueTokens(c.Request.Context(), user.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to issue tokens")
		return
	}

	common.OK(c, gin.H{
		"user":          gin.H{"id": user.ID, "email": user.Email, "created_at": user.CreatedAt},
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
	})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "refresh_token required")
		return
	}

	uid, err := h.Redis.UserIDForRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			common.Fail(c, http.StatusUnauthorized, 40104, "refresh token expired or unknown")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}

	// rotate: the presented token dies with this exchange
	_ = h.Redis.DeleteRefreshToken(c.Request.Context(), req.RefreshToken)

	accessToken, refreshToken, err := h.issueTokens(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to issue tokens")
		return
	}

	common.OK(c, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    int(h.Cfg.AccessTokenTTL.Seconds()),
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"user":          gin.H{"id": user.ID, "email": user.Email, "created_at": user.CreatedAt},
		"authenticated": true,
	})
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Logout(c *gin.Context) {
	var req logoutReq
	_ = c.ShouldBindJSON(&req) // token is optional; logout is always "ok"
	if req.RefreshToken != "" {
		_ = h.Redis.DeleteRefreshToken(c.Request.Context(), req.RefreshToken)
	}
	common.OK(c, gin.H{"message": "logged out"})
}

type forgotPasswordReq struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "email required")
		return
	}

	// respond identically whether or not the account exists
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", req.Email).
		First(&user).Error; err != nil {
		common.OK(c, gin.H{"message": "if the account exists, a reset code was sent"})
		return
	}

	code, err := randomDigits(6)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20004, "failed to generate reset code")
		return
	}
	if err := h.Redis.SaveResetCode(c.Request.Context(), req.Email, code, 15*time.Minute); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}

	go func(to, code string) {
		subject := "Circuits — password reset code"
		body := "Hello,\n\n" +
			"Your password reset code is: " + code + "\n\n" +
			"It expires in 15 minutes. If you did not request a reset, you can ignore this mail.\n\n" +
			"Circuits\n"
		if err := email.SendText(h.SMTPSetting, to, subject, body); err != nil {
			log.Printf("[ForgotPassword] send mail failed to=%s err=%v", to, err)
		}
	}(req.Email, code)

	common.OK(c, gin.H{"message": "if the account exists, a reset code was sent"})
}

type updatePasswordReq struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "email, code and new_password required")
		return
	}

	code, err := h.Redis.GetResetCode(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			common.Fail(c, http.StatusBadRequest, 10020, "reset code expired or not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if code != req.Code {
		common.Fail(c, http.StatusBadRequest, 10021, "invalid reset code")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}
	res := h.DB.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("email = ?", req.Email).
		Update("password_hash", hash)
	if res.Error != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	_ = h.Redis.DeleteResetCode(c.Request.Context(), req.Email)

	common.OK(c, gin.H{"message": "password updated"})
}

func (h *Handler) issueTokens(ctx context.Context, userID uint64) (access, refresh string, err error) {
	access, err = auth.SignJWT(userID, h.Cfg.JWTSecret, h.Cfg.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = common.NewULID()
	if err != nil {
		return "", "", err
	}
	if err = h.Redis.SaveRefreshToken(ctx, refresh, userID, h.Cfg.RefreshTokenTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}
