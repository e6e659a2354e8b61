package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/policy"
	"github.com/policydesk/api/internal/service"
	"github.com/policydesk/api/pkg/response"
)

// JobHandler serves single-target generation outside of a batch
type JobHandler struct {
	submitter *service.Submitter
	poller    *service.Poller
	registrar *service.Registrar
	validator *validator.Validate
}

func NewJobHandler(submitter *service.Submitter, poller *service.Poller, registrar *service.Registrar, v *validator.Validate) *JobHandler {
	return &JobHandler{
		submitter: submitter,
		poller:    poller,
		registrar: registrar,
		validator: v,
	}
}

// Submit handles POST /api/jobs
// @Summary      Submit one target
// @Description  Queue a policy-table render for one target. A job already in flight for the target is adopted.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.SubmitJobRequest true "Job request"
// @Success      202 {object} model.SubmitJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/jobs [post]
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	applyContent, err := policy.ResolveApplyContent(req.ApplyContent, req.Content)
	if err != nil {
		return writeError(c, err)
	}

	sub, err := h.submitter.Submit(c.UserContext(), model.JobRequest{
		TargetID:         req.TargetID,
		ApplyDateText:    req.ApplyDate,
		ApplyContentText: applyContent,
		AccessGroupIDs:   req.AccessGroupIDs,
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, model.SubmitJobResponse{
		JobID:   sub.JobID,
		Adopted: sub.Adopted,
		Status:  sub.Status,
	})
}

// Status handles GET /api/jobs/:jobId/status
// @Summary      Read job status
// @Description  Read the current status of a job once from the relay
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatus
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/jobs/{jobId}/status [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	st, err := h.poller.Fetch(c.UserContext(), jobID)
	if err != nil {
		return writeError(c, err)
	}
	if st.Status.IsTerminal() {
		h.submitter.Settle(jobID)
	}

	return response.OK(c, st)
}

type registerArtifactRequest struct {
	ImageURL string `json:"imageUrl"`
}

// Register handles POST /api/artifacts/:artifactId/register
// @Summary      Register an artifact
// @Description  Publish a rendered artifact. Publishing twice reports alreadyRegistered.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        artifactId path string true "Artifact ID"
// @Success      200 {object} model.RegisterResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/artifacts/{artifactId}/register [post]
func (h *JobHandler) Register(c *fiber.Ctx) error {
	artifactID := strings.TrimSpace(c.Params("artifactId"))
	if artifactID == "" {
		return response.ValidationError(c, "Artifact ID is required", nil)
	}

	// the body is optional; the image url only feeds the mirror
	var req registerArtifactRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	state := h.registrar.RegisterOne(c.UserContext(), model.JobResult{ArtifactID: artifactID, ImageURL: req.ImageURL})
	if state.Kind == model.RegistrationFailed {
		return response.Error(c, fiber.StatusBadGateway, response.CodeRelayError, "Registration failed", model.RegisterResponse{
			ArtifactID:   artifactID,
			Registration: state,
		})
	}

	return response.OK(c, model.RegisterResponse{ArtifactID: artifactID, Registration: state})
}
