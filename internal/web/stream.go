package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crimson-sun/sentinel/internal/metrics"
	"github.com/crimson-sun/sentinel/internal/model"
)

// streamMessage is the wire shape of one server-sent event.
type streamMessage struct {
	WarningID   int64           `json:"warning_id,omitempty"`
	WarningType string          `json:"warning_type,omitempty"`
	Payload     *model.RawEvent `json:"payload,omitempty"`
	Analysis    *model.Analysis `json:"analysis,omitempty"`
	IsPing      bool            `json:"is_ping"`
}

// handleStream tails the shared warning log as server-sent events. Each
// client reads independently from its own position; a slow client only
// delays itself. Entries are enriched on the way out and the enrichment is
// persisted so later summary reads see it.
func (s *Server) handleStream(c *gin.Context) {
	pos := uint64(0)
	if raw := c.Query("from"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
			return
		}
		pos = parsed
	}

	subscriber := uuid.NewString()
	metrics.Subscribers.Inc()
	defer metrics.Subscribers.Dec()
	s.logger.Info("stream subscriber connected", "subscriber", subscriber, "from", pos)
	defer s.logger.Info("stream subscriber disconnected", "subscriber", subscriber)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, resume := s.log.ReadFrom(pos)
			if len(entries) == 0 {
				if err := writeEvent(c.Writer, streamMessage{IsPing: true}); err != nil {
					return
				}
				c.Writer.Flush()
				continue
			}
			for i := range entries {
				entry := &entries[i]
				analysis := s.analyzer.Analyze(ctx, entry.Category, entry.Payload, entry.WarningID)
				if err := s.store.UpdateAnalysis(ctx, entry.WarningID, analysis); err != nil {
					s.logger.Warn("persisting analysis failed",
						"warning_id", entry.WarningID, "error", err)
				}
				msg := streamMessage{
					WarningID:   entry.WarningID,
					WarningType: entry.Category,
					Payload:     &entry.Payload,
					Analysis:    &analysis,
				}
				if err := writeEvent(c.Writer, msg); err != nil {
					return
				}
				c.Writer.Flush()
			}
			pos = resume
		}
	}
}

func writeEvent(w gin.ResponseWriter, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
