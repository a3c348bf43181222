package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	if domain.MessageOf(err) == domain.MessageUnknownPlatform {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindToolUnavailable, domain.KindUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := string(domain.KindOf(err))
	if code == "" {
		code = "internal"
	}
	c.JSON(statusFor(err), ErrorResponse{Error: domain.MessageOf(err), Code: code})
}
