package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/middleware"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/service"
	ws "github.com/policydesk/api/internal/websocket"
	"github.com/policydesk/api/pkg/response"
)

// BatchHandler serves batch runs and their snapshot stream
type BatchHandler struct {
	batches *service.BatchService
	hub     *ws.Hub
}

func NewBatchHandler(batches *service.BatchService, hub *ws.Hub) *BatchHandler {
	return &BatchHandler{batches: batches, hub: hub}
}

// Create handles POST /api/batches
// @Summary      Start a batch
// @Description  Render every target one at a time through the relay
// @Tags         Batches
// @Accept       json
// @Produce      json
// @Param        request body model.CreateBatchRequest true "Batch request"
// @Success      202 {object} model.CreateBatchResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches [post]
func (h *BatchHandler) Create(c *fiber.Ctx) error {
	var req model.CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	run, err := h.batches.Create(c.UserContext(), middleware.Identity(c), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, model.CreateBatchResponse{
		BatchID:  run.ID,
		Snapshot: run.Store.Snapshot(),
	})
}

// List handles GET /api/batches
// @Summary      List open batches
// @Tags         Batches
// @Produce      json
// @Success      200 {object} map[string][]string
// @Failure      401 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches [get]
func (h *BatchHandler) List(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"batchIds": h.batches.List(middleware.Identity(c))})
}

// Get handles GET /api/batches/:batchId
// @Summary      Batch snapshot
// @Tags         Batches
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchSnapshot
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches/{batchId} [get]
func (h *BatchHandler) Get(c *fiber.Ctx) error {
	snap, err := h.batches.Snapshot(c.Params("batchId"), middleware.Identity(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, snap)
}

// Retry handles POST /api/batches/:batchId/items/:targetId/retry
// @Summary      Retry a failed target
// @Tags         Batches
// @Produce      json
// @Param        batchId  path string true "Batch ID"
// @Param        targetId path string true "Target ID"
// @Success      202 {object} model.BatchSnapshot
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches/{batchId}/items/{targetId}/retry [post]
func (h *BatchHandler) Retry(c *fiber.Ctx) error {
	snap, err := h.batches.Retry(c.UserContext(), c.Params("batchId"), c.Params("targetId"), middleware.Identity(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.Accepted(c, snap)
}

// RegisterAll handles POST /api/batches/:batchId/register
// @Summary      Register every completed target
// @Tags         Batches
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.RegistrationSummary
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches/{batchId}/register [post]
func (h *BatchHandler) RegisterAll(c *fiber.Ctx) error {
	summary, err := h.batches.RegisterAll(c.UserContext(), c.Params("batchId"), middleware.Identity(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, summary)
}

// RegisterItem handles POST /api/batches/:batchId/items/:targetId/register
// @Summary      Register one target
// @Tags         Batches
// @Produce      json
// @Param        batchId  path string true "Batch ID"
// @Param        targetId path string true "Target ID"
// @Success      200 {object} model.RegisterResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches/{batchId}/items/{targetId}/register [post]
func (h *BatchHandler) RegisterItem(c *fiber.Ctx) error {
	batchID, targetID := c.Params("batchId"), c.Params("targetId")
	caller := middleware.Identity(c)

	state, err := h.batches.RegisterItem(c.UserContext(), batchID, targetID, caller)
	if err != nil {
		return writeError(c, err)
	}

	resp := model.RegisterResponse{Registration: state}
	if snap, err := h.batches.Snapshot(batchID, caller); err == nil {
		if it, ok := snap.Item(targetID); ok && it.Status != nil && it.Status.Result != nil {
			resp.ArtifactID = it.Status.Result.ArtifactID
		}
	}
	return response.OK(c, resp)
}

// Close handles DELETE /api/batches/:batchId
// @Summary      Close a batch view
// @Description  Stops local polling. Jobs already at the relay keep running.
// @Tags         Batches
// @Param        batchId path string true "Batch ID"
// @Success      204
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     GatewayUser
// @Router       /api/batches/{batchId} [delete]
func (h *BatchHandler) Close(c *fiber.Ctx) error {
	if err := h.batches.Close(c.Params("batchId"), middleware.Identity(c)); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

// Upgrade guards GET /ws/batches/:batchId: only websocket requests for a
// batch the caller owns get through.
func (h *BatchHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.batches.Get(c.Params("batchId"), middleware.Identity(c)); err != nil {
		return writeError(c, err)
	}
	return c.Next()
}

// Stream handles an upgraded snapshot connection
func (h *BatchHandler) Stream(c *websocket.Conn) {
	h.hub.HandleConnection(c, c.Params("batchId"))
}
