package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vivekbarnaon/Doc-Scanner/model"
	"github.com/vivekbarnaon/Doc-Scanner/service"
)

type HistoryHandler struct {
	workflow *service.Workflow
}

func NewHistoryHandler(workflow *service.Workflow) *HistoryHandler {
	return &HistoryHandler{workflow: workflow}
}

// List returns the persisted history, most recent first
func (h *HistoryHandler) List(c *gin.Context) {
	results, err := h.workflow.History()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if results == nil {
		results = []model.ProcessingResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Clear removes all history, in memory and on disk
func (h *HistoryHandler) Clear(c *gin.Context) {
	if err := h.workflow.ClearHistory(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History cleared"})
}
