package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vidtube/api/internal/service"
)

func (h HandlerSet) Register(c *gin.Context) {
	input := service.RegisterInput{
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		FullName: c.PostForm("fullName"),
		Password: c.PostForm("password"),
	}

	avatarFile, avatarHeader, err := c.Request.FormFile("avatar")
	if err != nil {
		respondError(c, errAvatarRequired)
		return
	}
	defer avatarFile.Close()

	// Validate the text fields and uniqueness before touching storage, so a
	// doomed request cannot leave orphan objects behind.
	if err := h.auth.ValidateRegistration(c.Request.Context(), &input); err != nil {
		respondError(c, err)
		return
	}

	input.AvatarURL, err = h.media.UploadImage(c.Request.Context(), avatarFile, avatarHeader, "avatars")
	if err != nil {
		respondError(c, err)
		return
	}

	// Cover image is optional; upload it only when the part is present.
	if coverFile, coverHeader, err := c.Request.FormFile("coverImage"); err == nil {
		defer coverFile.Close()
		input.CoverImageURL, err = h.media.UploadImage(c.Request.Context(), coverFile, coverHeader, "covers")
		if err != nil {
			respondError(c, err)
			return
		}
	}

	user, err := h.auth.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, newUserResponse(user), "user registered successfully")
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	user, pair, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.cookies.SetSessionCookies(c.Writer, pair.AccessToken, pair.RefreshToken)

	respond(c, http.StatusOK, sessionResponse{
		User:         newUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "user logged in successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	token, ok := h.cookies.RefreshTokenFromRequest(c.Request)
	if !ok {
		// Body fallback for clients that do not hold cookies.
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	h.cookies.SetSessionCookies(c.Writer, pair.AccessToken, pair.RefreshToken)

	respond(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "access token refreshed")
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, errNoAuthContext)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), user.ID); err != nil {
		respondError(c, err)
		return
	}

	h.cookies.ClearSessionCookies(c.Writer)

	respond(c, http.StatusOK, nil, "user logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, errNoAuthContext)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, nil, "password changed successfully")
}
