package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dumaterial/materials-api/internal/domain"
)

// AdminID returns the administrator id injected by the admin middleware.
func AdminID(c *fiber.Ctx) (string, bool) {
	return subjectID(c, domain.RoleAdmin)
}

// UserID returns the user id injected by the user middleware.
func UserID(c *fiber.Ctx) (string, bool) {
	return subjectID(c, domain.RoleUser)
}

func subjectID(c *fiber.Ctx, role domain.Role) (string, bool) {
	id, ok := c.Locals(LocalsKey(role)).(string)
	return id, ok && id != ""
}
