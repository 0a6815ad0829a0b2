// Package webhook is the inbound transport boundary: it terminates the
// messaging platform's webhook, deduplicates deliveries, and dispatches
// decoded events into the conversation handler.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/keanlouis/easely/internal/conversation"
	"github.com/keanlouis/easely/internal/notify"
	"github.com/keanlouis/easely/pkg/store"
)

// DefaultDedupWindow is how long a processed event ID is remembered.
const DefaultDedupWindow = 12 * time.Hour

// Server terminates the platform webhook.
type Server struct {
	client      *store.Client
	conv        *conversation.Handler
	notifier    notify.Notifier
	verifyToken string
	dedupWindow time.Duration
	server      *http.Server
}

// NewServer creates a webhook server. verifyToken is the shared secret the
// platform echoes during the GET verification handshake.
func NewServer(client *store.Client, conv *conversation.Handler, notifier notify.Notifier, verifyToken string) *Server {
	return &Server{
		client:      client,
		conv:        conv,
		notifier:    notifier,
		verifyToken: verifyToken,
		dedupWindow: DefaultDedupWindow,
	}
}

// Handler returns the HTTP handler, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	return mux
}

// Start starts the webhook server on the given address.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in background
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Webhook] Server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the webhook server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyHandler(w, r)
	case http.MethodPost:
		s.receiveHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// verifyHandler answers the platform's subscription handshake.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Inbound payload shapes, trimmed to the fields used.
type webhookPayload struct {
	Entry []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID        string `json:"mid"`
		Text       string `json:"text"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
	} `json:"message"`
	Postback *struct {
		Payload string `json:"payload"`
	} `json:"postback"`
}

// receiveHandler processes a webhook delivery. It always acknowledges with
// 200: a non-200 makes the platform redeliver the whole batch, which only
// multiplies the failure.
func (s *Server) receiveHandler(w http.ResponseWriter, r *http.Request) {
	defer fmt.Fprint(w, "OK")

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("[Webhook] Undecodable delivery: %v", err)
		return
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			s.processEvent(r.Context(), event)
		}
	}
}

func (s *Server) processEvent(ctx context.Context, event messagingEvent) {
	senderID := event.Sender.ID
	if senderID == "" {
		log.Printf("[Webhook] Event missing sender ID")
		return
	}

	ev, ok := decodeEvent(event)
	if !ok {
		return
	}

	first, err := s.client.MarkEventProcessed(ctx, ev.MessageID, s.dedupWindow)
	if err != nil {
		log.Printf("[Webhook] Dedup check failed for %s: %v", ev.MessageID, err)
		return
	}
	if !first {
		log.Printf("[Webhook] Dropping duplicate event %s", ev.MessageID)
		return
	}

	reply, err := s.conv.HandleEvent(ctx, senderID, ev)
	if err != nil {
		log.Printf("[Webhook] Error handling event from %s: %v", senderID, err)
	}

	for _, text := range reply.Texts {
		if err := s.notifier.Send(ctx, senderID, text); err != nil {
			log.Printf("[Webhook] Error replying to %s: %v", senderID, err)
		}
	}
}

// decodeEvent flattens a raw messaging event into a conversation event.
// Postbacks carry no provider message ID, so one is synthesized from the
// sender, timestamp and payload; redelivered postbacks repeat all three.
func decodeEvent(event messagingEvent) (conversation.Event, bool) {
	switch {
	case event.Message != nil && event.Message.QuickReply != nil:
		return conversation.Event{
			MessageID: event.Message.MID,
			Payload:   event.Message.QuickReply.Payload,
		}, true
	case event.Message != nil && event.Message.Text != "":
		return conversation.Event{
			MessageID: event.Message.MID,
			Text:      event.Message.Text,
		}, true
	case event.Postback != nil:
		return conversation.Event{
			MessageID: fmt.Sprintf("pb.%s.%d.%s", event.Sender.ID, event.Timestamp, event.Postback.Payload),
			Payload:   event.Postback.Payload,
		}, true
	default:
		// Attachments and delivery receipts are ignored.
		return conversation.Event{}, false
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := healthResponse{Status: "healthy"}
	w.Header().Set("Content-Type", "application/json")

	if err := s.client.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	response.Redis = "connected"
	json.NewEncoder(w).Encode(response)
}
