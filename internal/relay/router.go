package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cryptalk/internal/presence"
	"cryptalk/pkg/config"
	"cryptalk/pkg/metrics"
)

// PersistenceSink durably records delivered messages. Failures are an
// auxiliary durability concern: they are logged and never gate delivery.
type PersistenceSink interface {
	RecordMessage(ctx context.Context, senderID, recipientID, ciphertext, iv string) error
}

// Router resolves destination user ids to live handles and performs the
// at-most-two-party delivery: recipient plus an echo to the sender, or a
// synthetic system notice back to the sender when the recipient is offline.
type Router struct {
	logger      *slog.Logger
	registry    *presence.Registry
	broadcaster *presence.Broadcaster
	sink        PersistenceSink
	limiter     *userLimiter

	// presenceMu serializes registry mutation together with the matching
	// broadcast, so presence updates go out in the order the registry
	// processed the events. Holding it across BroadcastPresence is fine:
	// Send only enqueues onto buffered channels, the socket I/O happens
	// in each connection's write pump.
	presenceMu sync.Mutex
}

func NewRouter(logger *slog.Logger, registry *presence.Registry, broadcaster *presence.Broadcaster, sink PersistenceSink, cfg config.RelayConfig) *Router {
	r := &Router{
		logger:      logger.With(slog.String("component", "message_router")),
		registry:    registry,
		broadcaster: broadcaster,
		sink:        sink,
	}
	if cfg.MessageRate > 0 {
		r.limiter = newUserLimiter(cfg.MessageRate, cfg.MessageBurst)
	}
	return r
}

// RegisterSession stores the handle-to-identity mapping and fans out the
// updated presence list to everyone.
func (r *Router) RegisterSession(h presence.Handle, id presence.Identity) {
	r.presenceMu.Lock()
	change := r.registry.Register(h, id)
	metrics.ActiveSessions.Set(float64(len(change.Users)))
	r.broadcaster.BroadcastPresence(change)
	r.presenceMu.Unlock()

	r.logger.Info("session registered", slog.String("userID", id.UserID), slog.String("connID", h.ID().String()))
}

// Disconnect removes the handle's entry if one exists. Disconnecting a
// handle that never registered emits nothing.
func (r *Router) Disconnect(h presence.Handle) {
	r.presenceMu.Lock()
	change, removed := r.registry.Remove(h)
	if !removed {
		r.presenceMu.Unlock()
		return
	}
	metrics.ActiveSessions.Set(float64(len(change.Users)))
	r.broadcaster.BroadcastPresence(change)
	r.presenceMu.Unlock()

	r.logger.Info("session removed", slog.String("connID", h.ID().String()))
}

// Route delivers a private message. Messages from unregistered handles are
// a protocol violation and dropped silently; an offline recipient yields a
// single system notice to the sender and no persistence.
func (r *Router) Route(ctx context.Context, sender presence.Handle, p Payload) {
	senderIdentity, ok := r.registry.IdentityOf(sender.ID())
	if !ok {
		r.logger.Debug("dropping message from unregistered handle", slog.String("connID", sender.ID().String()))
		return
	}
	p.From = senderIdentity.UserID

	recipient, recipientIdentity, found := r.registry.FindHandleByUser(p.To)
	if !found {
		r.notifyUndelivered(sender, p.To)
		return
	}

	if r.sink != nil {
		if err := r.sink.RecordMessage(ctx, p.From, p.To, p.Ciphertext, p.IV); err != nil {
			metrics.PersistenceFailures.Inc()
			r.logger.Error("failed to persist message, delivering anyway",
				slog.String("from", p.From), slog.String("to", p.To), slog.Any("error", err))
		}
	}

	msg, err := encodeEvent(EventPrivateMessage, p)
	if err != nil {
		r.logger.Error("failed to marshal private message", slog.Any("error", err))
		return
	}
	recipient.Send(msg)

	// Echoed copy for the sender's own UI; the from field carries a
	// self-referential marker, a presentation convention only.
	echoPayload := p
	echoPayload.From = "You → " + recipientIdentity.DisplayName
	echo, err := encodeEvent(EventPrivateMessage, echoPayload)
	if err != nil {
		r.logger.Error("failed to marshal echo", slog.Any("error", err))
		return
	}
	sender.Send(echo)

	metrics.MessagesDelivered.Inc()
	r.logger.Debug("message routed", slog.String("from", p.From), slog.String("to", p.To))
}

func (r *Router) notifyUndelivered(sender presence.Handle, to string) {
	notice, err := encodeEvent(EventSystemNotice, systemNotice{
		Text: fmt.Sprintf("%s is offline; message not delivered", to),
		To:   to,
	})
	if err != nil {
		r.logger.Error("failed to marshal system notice", slog.Any("error", err))
		return
	}
	sender.Send(notice)
	metrics.MessagesUndelivered.Inc()
	r.logger.Debug("recipient offline", slog.String("to", to))
}
