package relay_test

import (
	"context"
	"testing"
)

func TestSessionRegisterEvent(t *testing.T) {
	router, registry := newTestRouter(&fakeSink{})
	h := newFakeHandle()
	session := router.NewSession(identity("u1"))

	session.HandleMessage(context.Background(), h, []byte(`{"event":"register","payload":{}}`))

	id, ok := registry.IdentityOf(h.ID())
	if !ok {
		t.Fatal("register event should create a presence entry")
	}
	if id.UserID != "u1" {
		t.Errorf("entry carries the authenticated identity, got %s", id.UserID)
	}
	if len(h.events("presence_update")) != 1 {
		t.Error("registration should trigger a presence broadcast")
	}
}

func TestSessionPrivateMessageEvent(t *testing.T) {
	router, _ := newTestRouter(&fakeSink{})
	a, b := newFakeHandle(), newFakeHandle()
	sessionA := router.NewSession(identity("u1"))
	sessionB := router.NewSession(identity("u2"))
	sessionA.HandleMessage(context.Background(), a, []byte(`{"event":"register","payload":{}}`))
	sessionB.HandleMessage(context.Background(), b, []byte(`{"event":"register","payload":{}}`))

	sessionA.HandleMessage(context.Background(), a,
		[]byte(`{"event":"private_message","payload":{"to":"u2","ciphertext":"abc","iv":"x"}}`))

	got := b.events("private_message")
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	msg := got[0].message(t)
	if msg.From != "u1" || msg.Ciphertext != "abc" || msg.IV != "x" {
		t.Errorf("unexpected payload: %+v", msg)
	}
}

func TestSessionDropsMalformedAndUnknownFrames(t *testing.T) {
	router, registry := newTestRouter(&fakeSink{})
	h := newFakeHandle()
	session := router.NewSession(identity("u1"))
	session.HandleMessage(context.Background(), h, []byte(`{"event":"register","payload":{}}`))
	before := len(h.events(""))

	session.HandleMessage(context.Background(), h, []byte(`{not json`))
	session.HandleMessage(context.Background(), h, []byte(`{"event":"shrug","payload":{}}`))
	session.HandleMessage(context.Background(), h, []byte(`{"event":"private_message","payload":{"ciphertext":"abc"}}`))

	if after := len(h.events("")); after != before {
		t.Errorf("protocol violations must be dropped without a response, got %d new events", after-before)
	}
	if _, ok := registry.IdentityOf(h.ID()); !ok {
		t.Error("violations must not crash or deregister the connection")
	}
}

func TestSessionCloseRemovesPresence(t *testing.T) {
	router, registry := newTestRouter(&fakeSink{})
	h := newFakeHandle()
	session := router.NewSession(identity("u1"))
	session.HandleMessage(context.Background(), h, []byte(`{"event":"register","payload":{}}`))

	session.HandleClose(h, nil)

	if _, ok := registry.IdentityOf(h.ID()); ok {
		t.Error("close must remove the presence entry")
	}
	if len(registry.Snapshot()) != 0 {
		t.Error("snapshot should be empty after the only session closed")
	}
}
