package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/dtos"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
	"github.com/rs/zerolog/log"
)

func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.JSON(status, dtos.ErrorResponse{Error: msg, Retryable: apperrors.Retryable(err)})
}

// requester returns the authenticated user or writes a 401.
func requester(c *gin.Context) (uuid.UUID, bool) {
	userID, err := middlewares.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dtos.ErrorResponse{Error: "not authenticated"})
		return uuid.Nil, false
	}
	return userID, true
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{Error: "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds the body into req, treating an empty body as {}.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}
