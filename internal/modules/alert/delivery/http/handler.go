package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"letsvida.com/guestsos/internal/dispatch"
	"letsvida.com/guestsos/internal/model"
	"letsvida.com/guestsos/internal/modules/alert/dto"
	alert "letsvida.com/guestsos/internal/modules/alert/service"
	"letsvida.com/guestsos/pkg/apperror"
	"letsvida.com/guestsos/pkg/response"
	"letsvida.com/guestsos/pkg/validator"
)

type AlertHandler struct {
	service       alert.AlertService
	bridge        *dispatch.Bridge
	dispatchPhone string
}

func NewAlertHandler(service alert.AlertService, bridge *dispatch.Bridge, dispatchPhone string) *AlertHandler {
	return &AlertHandler{
		service:       service,
		bridge:        bridge,
		dispatchPhone: dispatchPhone,
	}
}

// CreateAlert is the guest-side emergency action. The subject is always the
// authenticated user; location is optional because geolocation may have timed
// out on the device.
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	created, err := h.service.CreateAlert(c.Request.Context(), userID, req.Latitude, req.Longitude)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToAlertResponse(created))
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	found, err := h.service.GetAlert(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAlertResponse(found))
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	var filter dto.AlertFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	statuses := make([]model.AlertStatus, 0, len(filter.Status))
	for _, s := range filter.Status {
		statuses = append(statuses, model.AlertStatus(s))
	}

	alerts, err := h.service.ListAlerts(c.Request.Context(), statuses, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	out := make([]dto.AlertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, dto.ToAlertResponse(&alerts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.transition(c, h.service.Acknowledge)
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	h.transition(c, h.service.Resolve)
}

func (h *AlertHandler) MarkFalseAlarm(c *gin.Context) {
	h.transition(c, h.service.MarkFalseAlarm)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, responder *model.User, notes *string) (*model.Alert, error)

func (h *AlertHandler) transition(c *gin.Context, fn transitionFunc) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	responder, err := currentUser(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	// Body is optional: an acknowledge usually carries no notes.
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	updated, err := fn(c.Request.Context(), id, responder, req.Notes)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAlertResponse(updated))
}

// Reopen is the admin-only override that resets a terminal alert to pending.
func (h *AlertHandler) Reopen(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	admin, err := currentUser(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.service.Reopen(c.Request.Context(), id, admin)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAlertResponse(updated))
}

// Dispatch hands the alert to the external human-contact channel and returns
// the deep link. Initiation is recorded; delivery is not tracked.
func (h *AlertHandler) Dispatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	found, err := h.service.GetAlert(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	target := req.Target
	if target == "" {
		target = h.dispatchPhone
	}
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no dispatch target configured"})
		return
	}

	subjectName := ""
	if found.Subject != nil {
		subjectName = found.Subject.Username
	}

	result := h.bridge.Dispatch(c.Request.Context(), found, subjectName, target, userID)
	c.JSON(http.StatusOK, result)
}

// AttachEvidence uploads a responder-provided photo or clip for the alert.
func (h *AlertHandler) AttachEvidence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	updated, err := h.service.AttachEvidence(c.Request.Context(), id, file, header.Filename)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAlertResponse(updated))
}

func currentUser(c *gin.Context) (*model.User, error) {
	// Set by the role-gate middleware after the repository lookup.
	value, exists := c.Get("user")
	if !exists {
		return nil, apperror.ErrUnauthorized
	}
	user, ok := value.(*model.User)
	if !ok {
		return nil, apperror.ErrUnauthorized
	}
	return user, nil
}
