package lodd

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/tileset"
	"github.com/rotblauer/tilestream/types/viewport"
	"io"
	"net/http"
	"time"
)

// callTimeout bounds how long a handler waits on the driver.
const callTimeout = 5 * time.Second

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// fingerprint identifies a viewport by value, so a client re-posting
// an unchanged camera does not cost a frame.
func fingerprint(vp *viewport.Viewport) (uint64, error) {
	return hashstructure.Hash(vp, hashstructure.FormatV2, nil)
}

type lodDaemonStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Config    *params.LODDaemonConfig `json:"config"`
	WSOpen    bool                    `json:"ws_open"`
	WSConns   int                     `json:"ws_conns"`
	Viewports []conceptual.ViewportID `json:"viewports"`
	Tileset   tileset.Stats           `json:"tileset"`
}

func (d *LODDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	st, err := d.stats(ctx)
	if err != nil {
		d.logger.Warn("Failed to read tileset stats", "error", err)
		http.Error(w, "Tileset unavailable", http.StatusServiceUnavailable)
		return
	}
	report := lodDaemonStatus{
		StartedAt: d.started,
		Uptime:    time.Since(d.started).Round(time.Second).String(),
		Config:    d.Config,
		WSOpen:    !d.melodyInstance.IsClosed(),
		WSConns:   d.melodyInstance.Len(),
		Viewports: d.Viewports(),
		Tileset:   st,
	}
	j, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		d.logger.Error("Failed to marshal status", "error", err)
		http.Error(w, "Failed to marshal status", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(j); err != nil {
		d.logger.Warn("Failed to write response", "error", err)
	}
}

type viewportResponse struct {
	Viewport conceptual.ViewportID `json:"viewport"`
	Changed  bool                  `json:"changed"`
}

// handleViewport accepts a JSON viewport and hands it to the driver.
// An unchanged viewport is acknowledged with 200 and changed=false, a new one with 202.
func (d *LODDaemon) handleViewport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		d.logger.Error("Failed to read request body", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	vp := &viewport.Viewport{}
	if err := json.Unmarshal(body, vp); err != nil {
		http.Error(w, "Failed to decode viewport", http.StatusBadRequest)
		return
	}
	if vp.FovY == 0 {
		vp.FovY = viewport.DefaultFovY
	}
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	changed, err := d.Submit(ctx, vp)
	switch {
	case errors.Is(err, viewport.ErrInvalidViewport):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		d.logger.Warn("Failed to submit viewport", "viewport", vp.ID, "error", err)
		http.Error(w, "Tileset unavailable", http.StatusServiceUnavailable)
		return
	}
	if changed {
		w.WriteHeader(http.StatusAccepted)
	}
	if err := json.NewEncoder(w).Encode(viewportResponse{Viewport: vp.ID, Changed: changed}); err != nil {
		d.logger.Warn("Failed to write response", "error", err)
	}
}

func (d *LODDaemon) handleSelected(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	sel, err := d.selection(ctx)
	if err != nil {
		d.logger.Warn("Failed to read selection", "error", err)
		http.Error(w, "Tileset unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := json.NewEncoder(w).Encode(sel); err != nil {
		d.logger.Warn("Failed to write response", "error", err)
	}
}
