package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/scorestream/internal/model"
)

// CatalogStore is the catalog surface served over HTTP
type CatalogStore interface {
	Query(ctx context.Context, filter model.OrganizationFilter) ([]model.Organization, error)
	GetWithPrograms(ctx context.Context, id int) (*model.Organization, error)
	CreateOrganization(ctx context.Context, o *model.Organization) error
	UpdateOrganization(ctx context.Context, o *model.Organization) error
	Delete(ctx context.Context, id int) error
	UpsertProgram(ctx context.Context, orgID int, category string, classification model.Division, fields model.ProgramFields) (int, error)
}

// organizationRequest is the writable part of an organization
type organizationRequest struct {
	Abbreviation   string `json:"abbreviation"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	PrimaryColor   string `json:"primary_color"`
	AlternateColor string `json:"alternate_color"`
	LogoURL        string `json:"logo_url"`
	Slug           string `json:"slug"`
}

func (r organizationRequest) apply(o *model.Organization) {
	o.Name = strings.TrimSpace(r.Name)
	o.Location = strings.TrimSpace(r.Location)
	o.PrimaryColor = r.PrimaryColor
	o.AlternateColor = r.AlternateColor
	o.LogoURL = r.LogoURL
	o.Slug = r.Slug
	o.Provenance = model.ProvenanceManual
}

// ListOrganizationsHandler lists organizations, optionally filtered by
// ?q= text and ?classification=
func ListOrganizationsHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := model.OrganizationFilter{
			Text:           c.Query("q"),
			Classification: model.Division(strings.ToLower(c.Query("classification"))),
		}
		if filter.Classification != "" && !filter.Classification.Valid() {
			return badRequest(c, "unknown classification "+string(filter.Classification))
		}

		organizations, err := catalog.Query(c.UserContext(), filter)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(organizations)
	}
}

// GetOrganizationHandler returns one organization with its programs
func GetOrganizationHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return badRequest(c, "invalid organization id")
		}

		o, err := catalog.GetWithPrograms(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(o)
	}
}

// CreateOrganizationHandler adds a manually curated organization
func CreateOrganizationHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req organizationRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if model.NormalizeAbbreviation(req.Abbreviation) == "" || strings.TrimSpace(req.Name) == "" {
			return badRequest(c, "abbreviation and name are required")
		}

		o := &model.Organization{Abbreviation: req.Abbreviation}
		req.apply(o)
		if err := catalog.CreateOrganization(c.UserContext(), o); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(o)
	}
}

// UpdateOrganizationHandler overwrites an organization's descriptive fields
func UpdateOrganizationHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return badRequest(c, "invalid organization id")
		}

		var req organizationRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if strings.TrimSpace(req.Name) == "" {
			return badRequest(c, "name is required")
		}

		o := &model.Organization{ID: id}
		req.apply(o)
		if err := catalog.UpdateOrganization(c.UserContext(), o); err != nil {
			return respondError(c, err)
		}
		return c.JSON(o)
	}
}

// DeleteOrganizationHandler removes an organization and its programs
func DeleteOrganizationHandler(catalog CatalogStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return badRequest(c, "invalid organization id")
		}

		if err := catalog.Delete(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true})
	}
}
