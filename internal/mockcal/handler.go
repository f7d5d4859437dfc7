package mockcal

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Router builds the mock calendar's HTTP surface: the single /v1 query
// endpoint plus reset and health helpers.
func Router(state *State, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/v1", func(c *gin.Context) { handle(c, state, logger) })

	r.POST("/reset", func(c *gin.Context) {
		state.Reset()
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Schedule reset to defaults",
			"dates":   state.DateCount(),
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"service":           "mock-calendar",
			"dates_in_schedule": state.DateCount(),
		})
	})

	return r
}

func handle(c *gin.Context, state *State, logger zerolog.Logger) {
	action := c.Query("action")
	date := c.Query("date")
	shiftStart := c.Query("shift_start")
	shiftEnd := c.Query("shift_end")
	squad, _ := strconv.Atoi(c.Query("squad"))
	preview, _ := strconv.ParseBool(c.Query("preview"))

	logger.Info().
		Str("action", action).
		Str("date", date).
		Int("squad", squad).
		Bool("preview", preview).
		Msg("calendar request")

	switch action {
	case "getSchedule":
		start := c.Query("start_date")
		end := c.Query("end_date")
		if start == "" || end == "" {
			c.JSON(http.StatusOK, gin.H{"error": "start_date and end_date are required for getSchedule"})
			return
		}
		c.JSON(http.StatusOK, state.GetSchedule(start, end, squad))

	case "get_schedule_day":
		if date == "" {
			c.JSON(http.StatusOK, gin.H{"error": "date is required for get_schedule_day"})
			return
		}
		c.JSON(http.StatusOK, state.GetScheduleDay(date))

	case "noCrew", "addShift", "obliterateShift":
		if date == "" || shiftStart == "" || shiftEnd == "" || squad == 0 {
			c.JSON(http.StatusOK, gin.H{"error": fmt.Sprintf("date, shift_start, shift_end, and squad are required for %s", action)})
			return
		}
		if preview {
			c.JSON(http.StatusOK, previewResponse(action, date, shiftStart, shiftEnd, squad))
			return
		}
		switch action {
		case "noCrew":
			c.JSON(http.StatusOK, state.NoCrew(date, shiftStart, shiftEnd, squad))
		case "addShift":
			c.JSON(http.StatusOK, state.AddShift(date, shiftStart, shiftEnd, squad))
		case "obliterateShift":
			c.JSON(http.StatusOK, state.ObliterateShift(date, shiftStart, shiftEnd, squad))
		}

	default:
		c.JSON(http.StatusOK, gin.H{"error": fmt.Sprintf("Unknown action: %s", action)})
	}
}

// previewResponse describes what a command would do without applying it.
func previewResponse(action, date, shiftStart, shiftEnd string, squad int) gin.H {
	var msg string
	switch action {
	case "noCrew":
		msg = fmt.Sprintf("[PREVIEW] Would mark Squad %d as no crew for %s %s-%s", squad, date, shiftStart, shiftEnd)
	case "addShift":
		msg = fmt.Sprintf("[PREVIEW] Would add shift for Squad %d on %s %s-%s", squad, date, shiftStart, shiftEnd)
	case "obliterateShift":
		msg = fmt.Sprintf("[PREVIEW] Would obliterate shift for Squad %d on %s %s-%s", squad, date, shiftStart, shiftEnd)
	}
	return gin.H{
		"status":  "success",
		"action":  action,
		"preview": true,
		"message": msg,
	}
}
