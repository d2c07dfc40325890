package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/common"
	"github.com/circuitsapp/circuits-backend/internal/models"
)

func (h *Handler) GetMyProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	h.writeProfile(c, uid)
}

type updateProfileReq struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,max=500,url"`
}

func (h *Handler) UpdateMyProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid profile payload")
		return
	}

	updates := map[string]any{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, 10005, "no fields to update")
		return
	}
	updates["updated_at"] = time.Now().UTC()

	res := h.DB.WithContext(c.Request.Context()).
		Model(&models.Profile{}).
		Where("user_id = ?", uid).
		Updates(updates)
	if res.Error != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40403, "profile not found")
		return
	}

	h.writeProfile(c, uid)
}

// GetProfileByID serves only the caller's own profile; anyone else's is 403.
func (h *Handler) GetProfileByID(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	target, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}
	if target != uid {
		common.Fail(c, http.StatusForbidden, 40301, "access denied")
		return
	}

	h.writeProfile(c, target)
}

func (h *Handler) writeProfile(c *gin.Context, userID uint64) {
	var profile models.Profile
	if err := h.DB.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "profile not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, profile)
}
