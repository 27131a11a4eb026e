package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
)

// Headers que seleccionan tienda y serie de emisión.
const (
	HeaderStoreID = "X-Store-ID"
	HeaderSeries  = "X-Series"

	LocalStoreContext = "store_context"
)

// StoreMiddleware exige X-Store-ID y carga el StoreContext en c.Locals.
// X-Series es opcional; sin él se usa defaultSeries.
func StoreMiddleware(defaultSeries int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(HeaderStoreID))
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "STORE_REQUIRED", Message: HeaderStoreID + " requerido"})
		}
		storeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "STORE_REQUIRED", Message: HeaderStoreID + " debe ser numérico"})
		}

		series := defaultSeries
		if s := strings.TrimSpace(c.Get(HeaderSeries)); s != "" {
			series, err = strconv.Atoi(s)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: HeaderSeries + " debe ser numérico"})
			}
		}

		sc, err := entity.NewStoreContext(storeID, series)
		if err != nil {
			return writeError(c, err)
		}
		c.Locals(LocalStoreContext, sc)
		return c.Next()
	}
}

// GetStoreContext devuelve el StoreContext (después de StoreMiddleware).
func GetStoreContext(c *fiber.Ctx) entity.StoreContext {
	sc, _ := c.Locals(LocalStoreContext).(entity.StoreContext)
	return sc
}
