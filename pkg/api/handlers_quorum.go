package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
)

// ready handles POST /api/v1/ready.
// The body is the raw ready tag. The request is parked until the sender's
// quorum is released (200 with the release status), or answered at once with
// 409 for a late arrival or 400 for an unknown tag.
func (s *Server) ready(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	ctx := c.Request.Context()
	addr, replies := s.mailboxes.Open()
	defer s.mailboxes.Close(addr)

	if err := s.coordinator.Submit(ctx, endpoint.Message{Sender: addr, Tag: string(body)}); err != nil {
		s.logger.Warn("failed to submit ready message", zap.String("sender", addr), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "coordinator unavailable"})
		return
	}

	select {
	case r := <-replies:
		switch {
		case r.Err == nil:
			c.String(http.StatusOK, string(r.Status))
		case errors.Is(r.Err, endpoint.ErrLateArrival):
			c.JSON(http.StatusConflict, gin.H{"error": r.Err.Error()})
		case errors.Is(r.Err, endpoint.ErrUnknownTag):
			c.JSON(http.StatusBadRequest, gin.H{"error": r.Err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": r.Err.Error()})
		}
	case <-ctx.Done():
		// Client went away. The address stays queued and its release is dropped.
		s.logger.Debug("ready request abandoned", zap.String("sender", addr))
	}
}

// getQuorums handles GET /api/v1/quorums
func (s *Server) getQuorums(c *gin.Context) {
	snap, err := s.coordinator.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read quorums: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// drainQuorum handles POST /api/v1/quorums/:role/drain
func (s *Server) drainQuorum(c *gin.Context) {
	role := c.MustGet("role").(models.Role)

	released, err := s.coordinator.Drain(c.Request.Context(), role)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to drain: " + err.Error()})
		return
	}

	s.logger.Warn("quorum drained by operator", zap.String("role", string(role)), zap.Int("released", len(released)))
	c.JSON(http.StatusOK, gin.H{
		"role":     role,
		"released": len(released),
	})
}
