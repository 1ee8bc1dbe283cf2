package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dumaterial/materials-api/internal/api/dto"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/service"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// PurchasesHandler lets users unlock materials.
type PurchasesHandler struct {
	purchases *service.PurchaseService
}

func NewPurchasesHandler(purchases *service.PurchaseService) *PurchasesHandler {
	return &PurchasesHandler{purchases: purchases}
}

// Purchase handles POST /du_material/:id/purchase.
func (h *PurchasesHandler) Purchase(c *fiber.Ctx) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return apperrors.NewUnauthorized("no token provided")
	}

	purchase, created, err := h.purchases.Purchase(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"data": dto.PurchaseResponse{Purchase: purchase, Created: created},
	})
}

// List handles GET /user/purchases.
func (h *PurchasesHandler) List(c *fiber.Ctx) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return apperrors.NewUnauthorized("no token provided")
	}
	purchases, err := h.purchases.ListForUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": purchases})
}
