package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dtnitsch/aemo-scada/pkg/analytics"
	"github.com/dtnitsch/aemo-scada/pkg/history"
)

// load reads the data directory on every request; a fetch may have added a day.
func (s *Server) load(c *gin.Context) (*history.History, bool) {
	h, err := history.Load(s.cfg.DataDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return h, true
}

func errorStatus(err error) int {
	if errors.Is(err, history.ErrUnknownDay) || errors.Is(err, history.ErrUnknownUnit) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// handleDays lists the days present
// GET /api/v1/days
func (s *Server) handleDays(c *gin.Context) {
	h, ok := s.load(c)
	if !ok {
		return
	}
	days := h.Days()
	c.JSON(http.StatusOK, gin.H{
		"data": days,
		"meta": gin.H{"count": len(days), "skipped_files": h.Skipped},
	})
}

// handleUnits lists unit columns across all days
// GET /api/v1/units
func (s *Server) handleUnits(c *gin.Context) {
	h, ok := s.load(c)
	if !ok {
		return
	}
	units := h.Units()
	c.JSON(http.StatusOK, gin.H{
		"data": units,
		"meta": gin.H{"count": len(units)},
	})
}

// handleSeries returns one unit's values, for one day or all days
// GET /api/v1/series?day=&unit=
func (s *Server) handleSeries(c *gin.Context) {
	unit := c.Query("unit")
	if unit == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unit is required"})
		return
	}
	h, ok := s.load(c)
	if !ok {
		return
	}

	day := c.Query("day")
	points, err := h.Series(day, unit)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": points,
		"meta": gin.H{"unit": unit, "day": day, "count": len(points)},
	})
}

// handleKPIs returns per-unit KPIs for one day
// GET /api/v1/kpis?day=&unit=
func (s *Server) handleKPIs(c *gin.Context) {
	h, ok := s.load(c)
	if !ok {
		return
	}

	day := c.Query("day")
	if day == "" {
		days := h.Days()
		if len(days) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no days available"})
			return
		}
		day = days[len(days)-1]
	}

	t, err := h.Table(day)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	var kpis []analytics.KPIs
	if unit := c.Query("unit"); unit != "" {
		col := t.Column(unit)
		if col < 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown unit: " + unit})
			return
		}
		kpis = []analytics.KPIs{s.kpis.UnitKPIs(t.Units[col], t, col)}
	} else {
		kpis = s.kpis.TableKPIs(t)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": kpis,
		"meta": gin.H{"day": day, "count": len(kpis)},
	})
}
