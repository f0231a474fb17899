package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/models"
)

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, errNoAuthContext)
		return
	}

	respond(c, http.StatusOK, newUserResponse(user), "current user fetched")
}

type updateAccountRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

func (h HandlerSet) UpdateAccount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, errNoAuthContext)
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	updated, err := h.auth.UpdateAccount(c.Request.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, newUserResponse(updated), "account details updated")
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", "avatars", h.auth.UpdateAvatar)
}

func (h HandlerSet) UpdateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", "covers", h.auth.UpdateCoverImage)
}

// updateImage uploads the single file part and persists the resulting URL
// through the supplied setter.
func (h HandlerSet) updateImage(
	c *gin.Context,
	field string,
	kind string,
	persist func(ctx context.Context, userID, url string) (models.User, error),
) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, errNoAuthContext)
		return
	}

	file, header, err := c.Request.FormFile(field)
	if err != nil {
		respondError(c, apperr.Validation(field+" file is required"))
		return
	}
	defer file.Close()

	url, err := h.media.UploadImage(c.Request.Context(), file, header, kind)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := persist(c.Request.Context(), user.ID, url)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, newUserResponse(updated), field+" updated")
}
