package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"letsvida.com/guestsos/internal/modules/message/dto"
	message "letsvida.com/guestsos/internal/modules/message/service"
	"letsvida.com/guestsos/pkg/response"
	"letsvida.com/guestsos/pkg/validator"
)

type MessageHandler struct {
	service message.MessageService
}

func NewMessageHandler(service message.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	correlationID, err := uuid.Parse(req.CorrelationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid correlation id"})
		return
	}

	var recipientID *uuid.UUID
	if req.RecipientID != nil {
		parsed, err := uuid.Parse(*req.RecipientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient id"})
			return
		}
		recipientID = &parsed
	}

	sent, err := h.service.SendMessage(c.Request.Context(), userID, recipientID, req.Content, correlationID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sent)
}

func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter dto.ConversationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	messages, err := h.service.GetConversation(c.Request.Context(), userID, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid format"})
		return
	}

	updated, err := h.service.MarkAsRead(c.Request.Context(), id, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
