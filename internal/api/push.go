package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Storage notification attributes set by Cloud Storage on Pub/Sub messages.
const (
	attrObjectID      = "objectId"
	attrEventType     = "eventType"
	eventObjectFinish = "OBJECT_FINALIZE"
)

const maxEnvelopeBytes = 1 << 20

// pushEnvelope is the body Pub/Sub POSTs to push endpoints. Data arrives base64
// encoded and json decodes it into bytes.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func decodeEnvelope(r *http.Request) (pushEnvelope, error) {
	var env pushEnvelope
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		return env, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode push envelope: %w", err)
	}
	if env.Message.Attributes == nil {
		env.Message.Attributes = map[string]string{}
	}
	return env, nil
}

// pushCrawl handles POST /v1/pubsub/crawl. Success and final outcomes answer 204
// so Pub/Sub stops delivering; retryable failures answer 500.
func (s *Server) pushCrawl(w http.ResponseWriter, r *http.Request) {
	if s.deps.Crawls == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl handler unavailable")
		return
	}
	env, err := decodeEnvelope(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger := s.logger.With(
		zap.String("request_id", requestID(r.Context())),
		zap.String("message_id", env.Message.MessageID),
	)
	req, err := queue.Decode(env.Message.Data, env.Message.Attributes)
	if err != nil {
		logger.Error("dropping undecodable crawl request", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), queue.AttributeCarrier(env.Message.Attributes))
	if err := s.deps.Crawls.Handle(ctx, req); !queue.ShouldAck(err) {
		logger.Error("crawl request failed", zap.String("video_id", req.VideoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "crawl failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// storageEvent handles POST /v1/events/storage. Finalized catalog objects run
// the untouched-video detector; finalized comment collections are flattened.
func (s *Server) storageEvent(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attrs := env.Message.Attributes
	name := attrs[attrObjectID]
	logger := s.logger.With(
		zap.String("request_id", requestID(r.Context())),
		zap.String("object", name),
		zap.String("event_type", attrs[attrEventType]),
	)
	if name == "" || attrs[attrEventType] != eventObjectFinish {
		logger.Debug("ignoring storage event")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var (
		handler ObjectHandler
		kind    string
	)
	switch {
	case strings.HasPrefix(name, s.catalogPrefix()):
		handler, kind = s.deps.Detector, "published"
	case strings.HasPrefix(name, s.commentsPrefix()):
		handler, kind = s.deps.Flattener, "rows"
	default:
		logger.Debug("ignoring object outside watched prefixes")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if handler == nil {
		writeError(w, http.StatusServiceUnavailable, "object handler unavailable")
		return
	}

	n, err := handler.HandleObject(r.Context(), name)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			logger.Warn("object vanished before handling", zap.Error(err))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Error("storage event failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event handling failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": name, kind: n})
}

// syncCatalog handles POST /v1/catalog/sync. Quota exhaustion maps to 429.
func (s *Server) syncCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog sync unavailable")
		return
	}
	sum, err := s.deps.Catalog.SyncAll(r.Context())
	if err != nil {
		if errors.Is(err, chat.ErrUpstreamQuota) {
			s.logger.Warn("catalog sync hit quota", zap.Error(err))
			writeError(w, http.StatusTooManyRequests, "upstream quota exceeded")
			return
		}
		s.logger.Error("catalog sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"channels": sum.Channels, "added": sum.Added})
}
