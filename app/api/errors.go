package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"legischat/types"
)

const msgAnswerUnavailable = "no se pudo generar una respuesta en este momento, intente nuevamente"

func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	var valErr types.ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	apiErr = fromError(err)
	slog.Error("[API] request failed", "method", c.Method(), "path", c.Path(), "code", apiErr.Code, "error", err)
	return c.Status(apiErr.Code).JSON(apiErr)
}

func fromError(err error) Error {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, types.ErrSessionBusy):
		return NewError(fiber.StatusConflict, types.ErrSessionBusy.Error())
	case errors.Is(err, types.ErrSessionNotFound):
		return NewError(fiber.StatusNotFound, types.ErrSessionNotFound.Error())
	case errors.Is(err, types.ErrSynthesisFailed), errors.Is(err, types.ErrRetrievalFailed):
		return NewError(fiber.StatusBadGateway, msgAnswerUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(fiber.StatusGatewayTimeout, msgAnswerUnavailable)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return NewError(fe.Code, fe.Message)
	}
	return NewError(fiber.StatusInternalServerError, "internal server error")
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
