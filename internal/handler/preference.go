package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/middleware"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/service"
	"github.com/policydesk/api/pkg/response"
)

// PreferenceHandler serves the saved default groups per target
type PreferenceHandler struct {
	prefs     service.PreferenceStore
	validator *validator.Validate
}

func NewPreferenceHandler(prefs service.PreferenceStore, v *validator.Validate) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, validator: v}
}

// Get handles GET /api/preferences/:targetId
// @Summary      Saved groups of a target
// @Tags         Preferences
// @Produce      json
// @Param        targetId path string true "Target ID"
// @Success      200 {object} model.GroupPreference
// @Failure      401 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/preferences/{targetId} [get]
func (h *PreferenceHandler) Get(c *fiber.Ctx) error {
	targetID := c.Params("targetId")
	groups, err := h.prefs.GetGroups(c.UserContext(), middleware.GetUserID(c), targetID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if groups == nil {
		groups = []string{}
	}
	return response.OK(c, model.GroupPreference{TargetID: targetID, AccessGroupIDs: groups})
}

// Put handles PUT /api/preferences/:targetId
// @Summary      Save groups of a target
// @Tags         Preferences
// @Accept       json
// @Produce      json
// @Param        targetId path string true "Target ID"
// @Param        request body model.GroupPreference true "Groups"
// @Success      200 {object} model.GroupPreference
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/preferences/{targetId} [put]
func (h *PreferenceHandler) Put(c *fiber.Ctx) error {
	var req model.GroupPreference
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.TargetID = c.Params("targetId")

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	groups, err := h.prefs.SaveGroups(c.UserContext(), middleware.GetUserID(c), req.TargetID, req.AccessGroupIDs)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.GroupPreference{TargetID: req.TargetID, AccessGroupIDs: groups})
}
