package events

import (
	"net/http"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/http/handlers/response"
	remindersender "repeatme/internal/implementations/reminder_sender"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/r3labs/sse/v2"
)

// Handler streams reminders delivered by the internal transport. The owner
// must be an "internal:<stream>" id, the stream is named after the address.
// Several clients may follow one stream; it is removed with its last client.
type Handler struct {
	log       logging.Logger
	sseServer *sse.Server

	lock        sync.Mutex
	subscribers map[string]int
}

func New(log logging.Logger, sseServer *sse.Server) *Handler {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if sseServer == nil {
		panic(e.NewNilArgumentError("sseServer"))
	}
	return &Handler{log: log, sseServer: sseServer, subscribers: map[string]int{}}
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerID")
	streamID, ok := strings.CutPrefix(owner, string(remindersender.SchemeInternal)+":")
	if !ok || strings.TrimSpace(streamID) == "" {
		response.RenderError(rw, "events are available for internal owners only", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	h.subscribe(streamID)
	h.log.Info(ctx, "Subscribed to reminder events.", logging.Entry("owner", owner))

	go func() {
		// Received browser disconnection
		<-ctx.Done()
		h.unsubscribe(streamID)
		h.log.Info(ctx, "Unsubscribed from reminder events.", logging.Entry("owner", owner))
	}()

	streamReq := r.Clone(ctx)
	query := streamReq.URL.Query()
	query.Set("stream", streamID)
	streamReq.URL.RawQuery = query.Encode()
	h.sseServer.ServeHTTP(rw, streamReq)
}

func (h *Handler) subscribe(streamID string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.subscribers[streamID] == 0 {
		h.sseServer.CreateStream(streamID)
	}
	h.subscribers[streamID]++
}

func (h *Handler) unsubscribe(streamID string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.subscribers[streamID]--
	if h.subscribers[streamID] > 0 {
		return
	}
	delete(h.subscribers, streamID)
	h.sseServer.RemoveStream(streamID)
}
