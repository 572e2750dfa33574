package lodd

import (
	"context"
	"encoding/json"
	"github.com/olahol/melody"
	"github.com/rotblauer/tilestream/events"
)

type websocketAction string

var (
	websocketActionSelection websocketAction = "selection"
	websocketActionSnapshot  websocketAction = "snapshot"
)

type broadcast struct {
	Action    websocketAction   `json:"action"`
	Selection *events.Selection `json:"selection,omitempty"`
	Snapshot  *selection        `json:"snapshot,omitempty"`
}

// initMelody sets up the websocket hub. New connections get the current
// selection; after that every selection change is broadcast.
func (d *LODDaemon) initMelody() {
	d.melodyInstance = melody.New()

	d.melodyInstance.HandleConnect(func(s *melody.Session) {
		d.logger.Info("Websocket connected", "remote", s.Request.RemoteAddr)
		ctx, cancel := context.WithTimeout(s.Request.Context(), callTimeout)
		defer cancel()
		sel, err := d.selection(ctx)
		if err != nil {
			d.logger.Warn("No selection for new websocket", "error", err)
			return
		}
		b, _ := json.Marshal(broadcast{Action: websocketActionSnapshot, Snapshot: &sel})
		_ = s.Write(b)
	})

	// Clients have nothing to say to us. Log and drop.
	d.melodyInstance.HandleMessage(func(s *melody.Session, msg []byte) {
		d.logger.Debug("Websocket message", "remote", s.Request.RemoteAddr, "message", string(msg))
	})

	d.melodyInstance.HandleDisconnect(func(s *melody.Session) {
		d.logger.Info("Websocket disconnected", "remote", s.Request.RemoteAddr)
	})

	d.melodyInstance.HandleError(func(s *melody.Session, e error) {
		d.logger.Warn("Websocket error", "remote", s.Request.RemoteAddr, "error", e)
	})
}

// broadcastSelections forwards SelectionFeed events to every websocket client until ctx is done.
func (d *LODDaemon) broadcastSelections(ctx context.Context) {
	selections := make(chan events.Selection, 16)
	sub := d.tileset.SelectionFeed.Subscribe(selections)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case sel := <-selections:
			if d.melodyInstance.Len() == 0 {
				continue
			}
			b, err := json.Marshal(broadcast{Action: websocketActionSelection, Selection: &sel})
			if err != nil {
				d.logger.Error("Failed to marshal selection event", "error", err)
				continue
			}
			if err := d.melodyInstance.Broadcast(b); err != nil {
				d.logger.Warn("Failed to broadcast selection event", "error", err)
			}
		case err := <-sub.Err():
			if err != nil {
				d.logger.Error("Selection subscription failed", "error", err)
			}
			return
		}
	}
}
