// -----------------------------------------------------------------------
// WebSocket relay - streams per-job progress to connected clients
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler relays progress-bus messages for subscribed jobs onto
// client connections. One goroutine forwards bus messages, one drains
// client frames for ping handling; a per-connection mutex serializes writes.
type WebSocketHandler struct {
	bus            interfaces.ProgressBus
	namespace      string
	writeTimeout   time.Duration
	maxJobsPerConn int
	publishLimit   int
	logger         arbor.ILogger
}

// NewWebSocketHandler creates a new progress relay handler
func NewWebSocketHandler(bus interfaces.ProgressBus, config *common.WebSocketConfig, namespace string, logger arbor.ILogger) *WebSocketHandler {
	writeTimeout := 10 * time.Second
	maxJobs := 50
	publishLimit := 0
	if config != nil {
		if d := common.Duration(config.WriteTimeout); d > 0 {
			writeTimeout = d
		}
		if config.MaxJobsPerConn > 0 {
			maxJobs = config.MaxJobsPerConn
		}
		publishLimit = config.PublishRateLimit
	}
	return &WebSocketHandler{
		bus:            bus,
		namespace:      namespace,
		writeTimeout:   writeTimeout,
		maxJobsPerConn: maxJobs,
		publishLimit:   publishLimit,
		logger:         logger,
	}
}

// HandleJob handles GET /ws/jobs/{id} - progress for a single job.
func (h *WebSocketHandler) HandleJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	h.serve(w, r, []uint64{jobID})
}

// HandleJobs handles GET /ws/jobs?job_ids=1,2,3 - progress for many jobs.
func (h *WebSocketHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("job_ids")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "job_ids query parameter is required")
		return
	}

	var jobIDs []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid job id: "+part)
			return
		}
		jobIDs = append(jobIDs, id)
	}
	if len(jobIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "job_ids query parameter is required")
		return
	}
	if len(jobIDs) > h.maxJobsPerConn {
		WriteError(w, http.StatusBadRequest, "too many job ids, maximum is "+strconv.Itoa(h.maxJobsPerConn))
		return
	}
	h.serve(w, r, jobIDs)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, jobIDs []uint64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	topics := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		topics[i] = models.JobTopic(h.namespace, id)
	}

	sub := h.bus.Subscribe(topics...)
	defer sub.Close()

	var writeMu sync.Mutex
	writeFrame := func(payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	// Greeting frame confirms the subscription before any progress flows.
	greeting := map[string]interface{}{
		"type":    "connection",
		"job_ids": jobIDs,
		"status":  "connected",
	}
	if len(jobIDs) == 1 {
		greeting = map[string]interface{}{
			"type":   "connection",
			"job_id": jobIDs[0],
			"status": "connected",
		}
	}
	payload, _ := json.Marshal(greeting)
	if err := writeFrame(payload); err != nil {
		return
	}

	h.logger.Debug().
		Int("jobs", len(jobIDs)).
		Str("remote", r.RemoteAddr).
		Msg("WebSocket client connected")

	done := make(chan struct{})

	// Reader goroutine: drains client frames, answering pings.
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "ping" {
				pong, _ := json.Marshal(map[string]string{"type": "pong"})
				if err := writeFrame(pong); err != nil {
					return
				}
			}
		}
	}()

	var limiter *rate.Limiter
	if h.publishLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.publishLimit), h.publishLimit)
	}

	// Forwarder loop: bus messages out to the client until either side ends.
	for {
		select {
		case <-done:
			h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if limiter != nil && !limiter.Allow() {
				continue // Shed frames beyond the per-connection rate
			}
			if err := writeFrame(msg); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
				return
			}
		}
	}
}
