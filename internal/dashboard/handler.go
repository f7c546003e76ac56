package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gitmarks/gitmarks/internal/logging"
	gmsync "github.com/gitmarks/gitmarks/internal/sync"
)

// SyncResultData describes one finished operation.
type SyncResultData struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Pushed    int    `json:"pushed"`
	Applied   int    `json:"applied"`
	CommitID  string `json:"commit_id,omitempty"`
	Conflicts int    `json:"conflicts,omitempty"`
}

// ConflictData lists the paths that blocked a sync.
type ConflictData struct {
	Paths []string `json:"paths"`
}

// StatsData contains running totals since the process started.
type StatsData struct {
	Operations int            `json:"operations"`
	ByStatus   map[string]int `json:"by_status"`
	Pushed     int            `json:"pushed"`
	Applied    int            `json:"applied"`
	LastStatus string         `json:"last_status,omitempty"`
	LastCommit string         `json:"last_commit,omitempty"`
	LastSync   *time.Time     `json:"last_sync,omitempty"`
}

// Handler turns orchestrator results into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler broadcasting through server. New clients are
// greeted with the current totals.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{ByStatus: make(map[string]int)},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// OnResult is suitable as the orchestrator's result callback.
func (h *Handler) OnResult(op gmsync.Operation, res *gmsync.Result) {
	now := time.Now()

	h.mu.Lock()
	h.stats.Operations++
	h.stats.ByStatus[string(res.Status)]++
	h.stats.Pushed += res.Pushed
	h.stats.Applied += res.Applied
	h.stats.LastStatus = string(res.Status)
	if res.CommitID != "" {
		h.stats.LastCommit = res.CommitID
	}
	if res.Success() {
		h.stats.LastSync = &now
	}
	h.mu.Unlock()

	h.broadcast(MessageTypeSyncResult, now, SyncResultData{
		Operation: string(op),
		Status:    string(res.Status),
		Message:   res.Message,
		Pushed:    res.Pushed,
		Applied:   res.Applied,
		CommitID:  res.CommitID,
		Conflicts: len(res.Conflicts),
	})

	if len(res.Conflicts) > 0 {
		paths := make([]string, len(res.Conflicts))
		for i, c := range res.Conflicts {
			paths[i] = c.Path
		}
		h.broadcast(MessageTypeConflict, now, ConflictData{Paths: paths})
	}

	h.server.Broadcast(h.statsMessage())
}

// GetStats returns a copy of the running totals.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats
	s.ByStatus = make(map[string]int, len(h.stats.ByStatus))
	for k, v := range h.stats.ByStatus {
		s.ByStatus[k] = v
	}
	return s
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		logging.Errorf(h.logger, "Failed to marshal stats: %v", err)
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) broadcast(typ MessageType, at time.Time, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Errorf(h.logger, "Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: data})
}
