package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/pageready/models"
)

// errorBody is the envelope middleware rejections share with the handlers.
type errorBody struct {
	Success bool                `json:"success"`
	Error   *models.ErrorDetail `json:"error"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{
		Error: &models.ErrorDetail{Code: code, Message: message},
	})
}
