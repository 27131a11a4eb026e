package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// writeError traduce errores de dominio y del pipeline a HTTP.
// Los del pipeline llevan la categoría y, si hubo rechazo, cStat y xMotivo literal.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrStoreRequired):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "STORE_REQUIRED", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_TRANSITION", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	}

	category := nfce.Category(err)
	body := dto.PipelineErrorResponse{
		Code:     "NFCE_" + strings.ToUpper(category),
		Category: category,
		Message:  nfce.OperatorMessage(err),
	}
	var rej *nfce.RejectionError
	if errors.As(err, &rej) {
		body.CStat = rej.Code
		body.XMotivo = rej.Reason
	}

	status := fiber.StatusInternalServerError
	switch category {
	case nfce.CategoryValidation:
		status = fiber.StatusBadRequest
	case nfce.CategoryDocument, nfce.CategoryRejection:
		status = fiber.StatusUnprocessableEntity
	case nfce.CategoryParse:
		status = fiber.StatusBadGateway
	case nfce.CategoryTransport:
		status = fiber.StatusServiceUnavailable
	case nfce.CategoryInternal:
		body.Code = "INTERNAL"
	}
	return c.Status(status).JSON(body)
}
