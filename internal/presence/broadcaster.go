package presence

import (
	"encoding/json"
	"log/slog"

	"cryptalk/pkg/metrics"
)

type presenceEnvelope struct {
	Event   string          `json:"event"`
	Payload presencePayload `json:"payload"`
}

type presencePayload struct {
	Users []Identity `json:"users"`
}

// Broadcaster fans the full current user list out to every connected
// handle after each effective registry change. A full-state push is
// simpler than diffs and cheap at the expected scale.
type Broadcaster struct {
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{logger: logger.With(slog.String("component", "presence_broadcaster"))}
}

// BroadcastPresence pushes the user list captured in the Change to every
// handle that was live at that moment. Delivery is best effort per handle.
func (b *Broadcaster) BroadcastPresence(change Change) {
	msg, err := json.Marshal(presenceEnvelope{
		Event:   "presence_update",
		Payload: presencePayload{Users: change.Users},
	})
	if err != nil {
		b.logger.Error("failed to marshal presence update", slog.Any("error", err))
		return
	}

	for _, h := range change.Targets {
		h.Send(msg)
	}
	metrics.PresenceBroadcasts.Inc()
	b.logger.Debug("presence broadcast", slog.Int("online", len(change.Users)), slog.Int("targets", len(change.Targets)))
}
