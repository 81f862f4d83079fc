package handlers

import (
	"net/http"
	"strings"

	"detective_backend/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	Username string `json:"username"`
}

// Auth upserts the player and issues a JWT. There is no password: identity is
// a display name, enough for ratings and room ownership.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 1-64 characters"})
		return
	}

	player, err := h.Players.Upsert(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create player"})
		return
	}

	token, err := service.GenerateJWT(player.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"player": gin.H{
			"id":       player.ID,
			"username": player.Username,
		},
	})
}

// Me returns the caller's profile with rating.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	player, err := h.Players.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}

	rating, wins := 1000.0, 0
	if r, w, err := h.Ratings.GetRatingAndWins(c.Request.Context(), userID); err == nil {
		rating, wins = r, w
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       player.ID,
		"username": player.Username,
		"rating":   rating,
		"wins":     wins,
	})
}
