package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/models"
)

// envelope is the uniform response shape for every endpoint, success or not.
type envelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// respondError is the transport boundary for errors: typed service errors are
// mapped to status codes here and nowhere else.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	c.JSON(status, envelope{
		StatusCode: status,
		Data:       nil,
		Message:    apperr.PublicMessage(err),
		Success:    false,
	})
}

// userResponse is the sanitized projection of a user: no password hash, no
// refresh token, ever.
type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt,
	}
}
