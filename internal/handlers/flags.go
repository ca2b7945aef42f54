package handlers

import (
	"net/http"
	"strings"

	"mailsort-be/internal/models"
	"mailsort-be/internal/repository"

	"github.com/gin-gonic/gin"
)

type FlagsHandler struct {
	flagRepo *repository.FlagRepository
}

func NewFlagsHandler(flagRepo *repository.FlagRepository) *FlagsHandler {
	return &FlagsHandler{flagRepo: flagRepo}
}

// SaveFlags replaces the caller's whole flag set.
// POST /api/flags
func (h *FlagsHandler) SaveFlags(c *gin.Context) {
	email := c.GetString("email")

	var req models.SaveFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	flags := make([]models.Flag, 0, len(req.Flags))
	seen := map[string]bool{}
	for _, in := range req.Flags {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "Flag name must not be empty",
			})
			return
		}
		if seen[name] {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "Duplicate flag name: " + name,
			})
			return
		}
		seen[name] = true

		flags = append(flags, models.Flag{
			Email:       email,
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			Color:       in.Color,
			IsActive:    in.IsActive,
		})
	}

	if err := h.flagRepo.ReplaceFlags(c.Request.Context(), email, flags); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to save flags",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Flags saved successfully",
		"count":   len(flags),
	})
}

// GetFlags returns the caller's flag set.
// GET /api/flags
func (h *FlagsHandler) GetFlags(c *gin.Context) {
	email := c.GetString("email")

	flags, err := h.flagRepo.GetFlags(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load flags",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

// ClearFlags removes every flag of the caller.
// POST /api/flags/clear
func (h *FlagsHandler) ClearFlags(c *gin.Context) {
	email := c.GetString("email")

	if err := h.flagRepo.ClearFlags(c.Request.Context(), email); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to clear flags",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flags cleared"})
}
