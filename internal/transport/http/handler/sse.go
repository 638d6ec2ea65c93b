package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-search/internal/app"
	"gopherai-search/internal/pipeline"
)

var errStreamUnsupported = errors.New("stream not supported")

// sseWriter switches the response to text/event-stream on the first event,
// so failures before anything was emitted can still answer with JSON.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) emit(ev app.Event) error {
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	if !w.started {
		if _, ok := w.c.Writer.(http.Flusher); !ok {
			return errStreamUnsupported
		}
		w.c.Header("Content-Type", "text/event-stream")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Header("Connection", "keep-alive")
		w.c.Header("X-Accel-Buffering", "no")
		w.c.Status(http.StatusOK)
		w.started = true
	}
	w.c.SSEvent(string(ev.Type), ssePayload(ev))
	w.c.Writer.Flush()
	return nil
}

// ssePayload wraps scalar data in an object so leading spaces and newlines
// of fragments survive the event-stream framing.
func ssePayload(ev app.Event) any {
	switch v := ev.Data.(type) {
	case string:
		if ev.Type == app.EventFragment {
			return gin.H{"text": v}
		}
		return gin.H{"message": v}
	case pipeline.Intent:
		return gin.H{"intent": v}
	default:
		return v
	}
}
