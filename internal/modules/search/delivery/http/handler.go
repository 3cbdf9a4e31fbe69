package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	search "letsvida.com/guestsos/internal/modules/search/service"
	"letsvida.com/guestsos/pkg/response"
)

type SearchHandler struct {
	service search.AlertSearchService
}

func NewSearchHandler(service search.AlertSearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// SearchAlerts queries the terminal-alert audit index.
func (h *SearchHandler) SearchAlerts(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)

	hits, err := h.service.SearchAlerts(query, limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hits})
}
