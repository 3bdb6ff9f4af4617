package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/realtime"
	"go.uber.org/zap"
)

// ChangeSubscriber hands out change subscriptions for a vault.
type ChangeSubscriber interface {
	Subscribe(vaultID string, tables ...string) *realtime.Subscription
}

// ChangesHandler streams a vault's change events as server-sent events.
type ChangesHandler struct {
	Hub       ChangeSubscriber
	KeepAlive time.Duration
	Log       *zap.Logger
}

var streamTables = func() map[string]bool {
	m := map[string]bool{"vaults": true}
	for _, k := range models.Kinds {
		m[k.Table()] = true
	}
	return m
}()

// Stream serves GET .../changes?tables=operations,personas. Without tables
// every table of the vault is streamed.
func (h *ChangesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	var tables []string
	if raw := r.URL.Query().Get("tables"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if !streamTables[t] {
				badRequest(w, fmt.Sprintf("unknown table %q", t))
				return
			}
			tables = append(tables, t)
		}
	}

	vid := vaultID(r)
	sub := h.Hub.Subscribe(vid, tables...)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				if h.Log != nil {
					h.Log.Warn("encode change event", zap.String("vault_id", vid), zap.Error(err))
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
