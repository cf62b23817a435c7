package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// failFromError maps a service error onto the response envelope.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	var fe *service.FieldError
	switch {
	case errors.As(err, &fe):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fe.Fields)
	case errors.Is(err, service.ErrInvalidTest):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidTest)
	case errors.Is(err, service.ErrTestNotFound), errors.Is(err, service.ErrSubmissionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrAdminAccessOnly)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	case errors.Is(err, service.ErrEmailTaken):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrPersistence):
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Persistence failure")
		response.Fail(c, http.StatusInternalServerError, response.ErrSubmissionFailed)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// requireIdentity fetches the caller or writes 401.
func requireIdentity(c *gin.Context) (model.Identity, bool) {
	who, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return who, ok
}

// uuidParam parses a path param or writes 400 INVALID_ID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
