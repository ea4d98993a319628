package relay

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"

	"cryptalk/internal/presence"
)

// Session binds one authenticated connection to its verified identity and
// dispatches the connection's inbound events. The identity was validated
// by the auth layer before the socket was accepted; the relay trusts it
// without re-verification.
type Session struct {
	router   *Router
	identity presence.Identity
	logger   *slog.Logger
}

func (r *Router) NewSession(identity presence.Identity) *Session {
	return &Session{
		router:   r,
		identity: identity,
		logger:   r.logger.With(slog.String("userID", identity.UserID)),
	}
}

// HandleMessage parses one inbound envelope and dispatches it. Malformed
// envelopes and unknown events are protocol violations: logged, dropped,
// never fatal to the connection.
func (s *Session) HandleMessage(ctx context.Context, h presence.Handle, raw []byte) {
	if !gjson.ValidBytes(raw) {
		s.logger.Warn("dropping malformed frame", slog.String("connID", h.ID().String()))
		return
	}
	event := gjson.GetBytes(raw, "event").String()
	payload := gjson.GetBytes(raw, "payload")

	switch event {
	case EventRegister:
		s.router.RegisterSession(h, s.identity)

	case EventPrivateMessage:
		if s.router.limiter != nil && !s.router.limiter.Allow(s.identity.UserID) {
			s.logger.Warn("message rate limit exceeded, dropping")
			return
		}
		p := Payload{
			To:         payload.Get("to").String(),
			Ciphertext: payload.Get("ciphertext").String(),
			IV:         payload.Get("iv").String(),
		}
		if p.To == "" {
			s.logger.Warn("dropping private message without recipient")
			return
		}
		s.router.Route(ctx, h, p)

	default:
		s.logger.Warn("received unknown event", slog.String("event", event))
	}
}

// HandleClose removes the session's presence entry. The transport invokes
// it exactly once per connection regardless of how the teardown started.
func (s *Session) HandleClose(h presence.Handle, err error) {
	s.router.Disconnect(h)
}
