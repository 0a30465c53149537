package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	turnuc "github.com/kailas-cloud/tripmatch/internal/usecase/turn"
)

// SSE event names sent on the chat stream.
const (
	eventOffers  = "offers"
	eventContent = "content"
	eventEnd     = "end"
	eventError   = "error"
)

// sseWriter writes server-sent events and implements the turn sink so
// the pipeline can stream directly to the client.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ turnuc.Sink = (*sseWriter)(nil)

// newSSEWriter prepares the response for event streaming and sends the
// headers immediately so proxies stop buffering.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Offers sends the structured shortlist as a single event.
func (s *sseWriter) Offers(offers []turnuc.OfferView) error {
	return s.event(eventOffers, offers)
}

// Content sends one reply fragment.
func (s *sseWriter) Content(fragment string) error {
	return s.event(eventContent, map[string]string{"text": fragment})
}

// End terminates the stream successfully.
func (s *sseWriter) End(conversationID string) {
	_ = s.event(eventEnd, map[string]string{"conversation_id": conversationID})
}

// Error terminates the stream with an error event.
func (s *sseWriter) Error(message string) {
	_ = s.event(eventError, map[string]string{"message": message})
}

// event writes one named event with a JSON data payload. JSON encoding
// keeps fragment newlines inside a single data line.
func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}
