package webhook

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/gchat-relay/internal/auth"
	"github.com/zhouzirui/gchat-relay/internal/model/chat"
	"github.com/zhouzirui/gchat-relay/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Dispatcher produces the reply for a verified event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event) chat.Reply
}

// Handler receives Google Chat event deliveries.
type Handler struct {
	verifier   auth.TokenVerifier
	dispatcher Dispatcher
}

// New creates the webhook handler.
func New(verifier auth.TokenVerifier, dispatcher Dispatcher) *Handler {
	return &Handler{
		verifier:   verifier,
		dispatcher: dispatcher,
	}
}

// RegisterRoutes mounts the webhook at path.
func (h *Handler) RegisterRoutes(r chi.Router, path string) {
	r.Post(path, h.handleEvent)
}

// handleEvent verifies the caller, dispatches the event and writes the reply.
// Only authentication failures produce a non-2xx status; the platform treats
// anything else as a failed delivery.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	claims, err := h.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		log.Printf("[webhook] request=%s rejected (%s): %v", reqID, auth.ReasonOf(err), err)
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var ev chat.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		log.Printf("[webhook] request=%s malformed event body: %v", reqID, err)
		utils.RespondJSON(w, http.StatusOK, chat.NoReply())
		return
	}

	log.Printf("[webhook] request=%s event type=%s space=%s from=%s", reqID, ev.Type, ev.ConversationID(), claims.Subject)

	reply := h.dispatcher.Dispatch(r.Context(), ev)
	utils.RespondJSON(w, http.StatusOK, reply)
}
