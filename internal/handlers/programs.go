package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/scorestream/internal/model"
)

type programRequest struct {
	Category       string         `json:"category"`
	Classification model.Division `json:"classification"`
	model.ProgramFields
}

// UpsertProgramHandler creates or updates the program of an organization
// for a (category, classification) pair
func UpsertProgramHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := c.ParamsInt("id")
		if err != nil || orgID < 1 {
			return badRequest(c, "invalid organization id")
		}

		var req programRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		req.Classification = model.Division(strings.ToLower(string(req.Classification)))

		id, err := catalog.UpsertProgram(c.UserContext(), orgID, req.Category, req.Classification, req.ProgramFields)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "id": id})
	}
}
