package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/policy"
	"github.com/policydesk/api/pkg/response"
)

// PolicyHandler exposes the content schemas and the text conversion used
// by the batch form.
type PolicyHandler struct{}

func NewPolicyHandler() *PolicyHandler {
	return &PolicyHandler{}
}

// Schemas handles GET /api/policy/schemas
// @Summary      Content schemas
// @Tags         Policy
// @Produce      json
// @Success      200 {array} policy.Schema
// @Security     GatewayUser
// @Router       /api/policy/schemas [get]
func (h *PolicyHandler) Schemas(c *fiber.Ctx) error {
	out := make([]policy.Schema, 0)
	for _, cat := range policy.Categories() {
		s, _ := policy.Lookup(cat)
		out = append(out, s)
	}
	return response.OK(c, out)
}

// Normalize handles POST /api/policy/normalize
// @Summary      Content to applyContent text
// @Tags         Policy
// @Accept       json
// @Produce      json
// @Param        request body model.PolicyContent true "Content"
// @Success      200 {object} map[string]string
// @Failure      400 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/policy/normalize [post]
func (h *PolicyHandler) Normalize(c *fiber.Ctx) error {
	var req model.PolicyContent
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	text, err := policy.Normalize(req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"applyContent": text})
}

// Denormalize handles POST /api/policy/denormalize
// @Summary      applyContent text to content
// @Tags         Policy
// @Accept       json
// @Produce      json
// @Success      200 {object} model.PolicyContent
// @Failure      400 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/policy/denormalize [post]
func (h *PolicyHandler) Denormalize(c *fiber.Ctx) error {
	var req struct {
		ApplyContent string `json:"applyContent"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	content, err := policy.Denormalize(req.ApplyContent)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, content)
}
