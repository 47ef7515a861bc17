package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/refresh"
)

func (s *Server) health(c *gin.Context) {
	connected := false
	if s.hub != nil {
		connected = s.hub.Connected()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"panels":        s.registry.Len(),
		"entities":      s.entities.Len(),
		"hub_connected": connected,
	})
}

func (s *Server) listPanels(c *gin.Context) {
	coords := s.registry.All()
	out := make([]gin.H, 0, len(coords))
	for _, coord := range coords {
		panel := coord.Panel()
		out = append(out, gin.H{
			"name":        panel.Name,
			"source":      panel.Source,
			"time_series": coord.TimeSeries(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPanel(c *gin.Context) {
	coord, ok := s.registry.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown panel"})
		return
	}

	node, resolvedAt, ok := coord.Document()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "panel not resolved yet"})
		return
	}
	s.writePanel(c, coord.Panel().Name, node, resolvedAt)
}

func (s *Server) refreshPanel(c *gin.Context) {
	coord, ok := s.registry.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown panel"})
		return
	}

	node, err := coord.Refresh(c.Request.Context())
	if err != nil {
		// A concurrent run superseded this one; its result is newer, so
		// serve whatever is current.
		if errors.Is(err, refresh.ErrStale) {
			if current, resolvedAt, ok := coord.Document(); ok {
				s.writePanel(c, coord.Panel().Name, current, resolvedAt)
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "panel not resolved yet"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	_, resolvedAt, _ := coord.Document()
	s.writePanel(c, coord.Panel().Name, node, resolvedAt)
}

func (s *Server) getEntity(c *gin.Context) {
	ent, ok := s.entities.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown entity"})
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (s *Server) writePanel(c *gin.Context, name string, node document.Node, resolvedAt time.Time) {
	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"resolved_at": resolvedAt.UTC().Format(time.RFC3339),
		"option":      document.ToGo(node),
	})
}
