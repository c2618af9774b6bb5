package api

import (
	"errors"

	"persona-chat/backend/internal/service"
	apperrors "persona-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// serviceError maps service sentinels to the HTTP errors clients see.
// Unknown errors pass through and are rendered as opaque 500s.
func serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, "Chat not found").Wrap(err)
	case errors.Is(err, service.ErrMessageNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, "Message not found").Wrap(err)
	case errors.Is(err, service.ErrUserNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, "User not found").Wrap(err)
	case errors.Is(err, service.ErrUnknownModel):
		return apperrors.NewNotFoundError(apperrors.CodeNotFound, "Model not found").Wrap(err)
	case errors.Is(err, service.ErrChatForbidden):
		return apperrors.NewUnauthorizedError(apperrors.CodeForbidden, "Unauthorized").Wrap(err)
	case errors.Is(err, service.ErrNoUserMessage):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidInput, "No user message found").Wrap(err)
	case errors.Is(err, service.ErrInvalidVote):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidInput, "Vote must be up or down").Wrap(err)
	case errors.Is(err, service.ErrInvalidVisibility):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidInput, "Visibility must be private or public").Wrap(err)
	case errors.Is(err, service.ErrResetTokenInvalid):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidInput, "Invalid or expired token").Wrap(err)
	case errors.Is(err, service.ErrResetTokenExpired):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidInput, "Token has expired").Wrap(err)
	default:
		return err
	}
}

func abortWith(c *gin.Context, err error) {
	_ = c.Error(serviceError(err))
	c.Abort()
}

func badRequest(c *gin.Context, message string, cause error) {
	appErr := apperrors.NewBadRequestError(apperrors.CodeInvalidInput, message)
	if cause != nil {
		appErr = appErr.Wrap(cause)
	}
	_ = c.Error(appErr)
	c.Abort()
}
