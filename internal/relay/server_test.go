package relay_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"cipherchat/internal/domain"
	"cipherchat/internal/relay"
	"cipherchat/internal/remote"
)

const room = domain.ChatRoomID("room-1")

func newTestRelay(t *testing.T) (*httptest.Server, *remote.Client) {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(relay.NewMemoryStore(), nil).Router())
	t.Cleanup(srv.Close)
	client := remote.NewClient(srv.URL, srv.Client(), nil)
	client.Poll = 10 * time.Millisecond
	return srv, client
}

func envelope(sender domain.UserID, ct string) domain.EncryptedMessage {
	return domain.EncryptedMessage{
		SenderID:      sender,
		Ciphertext:    ct,
		IV:            "iv",
		EncryptedKeys: map[domain.UserID]string{sender: "wrapped"},
		Algorithm:     domain.AlgorithmAESCBC256,
		ClientCreated: 42,
	}
}

func TestAppendAndSubscribeOverHTTP(t *testing.T) {
	_, client := newTestRelay(t)
	ctx := context.Background()

	id, err := client.AppendMessage(ctx, room, envelope("alice", "c1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatal("no id assigned")
	}

	ch, cancel, err := client.Subscribe(ctx, room)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case batch := <-ch:
		if len(batch) != 1 || batch[0].Type != domain.ChangeAdded {
			t.Fatalf("bad initial batch: %+v", batch)
		}
		got := batch[0].Message
		if got.ID != id || got.Ciphertext != "c1" || got.ClientCreated != 42 {
			t.Errorf("round trip mangled the envelope: %+v", got)
		}
		if got.CreatedAtMs == 0 {
			t.Error("server did not stamp the message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}

	// A second append shows up as an incremental batch.
	id2, err := client.AppendMessage(ctx, room, envelope("bob", "c2"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case batch := <-ch:
		if len(batch) != 1 || batch[0].Message.ID != id2 {
			t.Fatalf("bad incremental batch: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no incremental batch delivered")
	}
}

func TestSubscribeCancelClosesFeed(t *testing.T) {
	_, client := newTestRelay(t)

	ch, cancel, err := client.Subscribe(context.Background(), room)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("got a batch after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPublicKeyLifecycleOverHTTP(t *testing.T) {
	_, client := newTestRelay(t)
	ctx := context.Background()
	user := domain.UserID("alice")

	if _, ok, err := client.GetPublicKey(ctx, user); err != nil || ok {
		t.Fatalf("key before publish: ok=%v err=%v", ok, err)
	}
	if err := client.PublishPublicKey(ctx, user, "PEM-DATA"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	pem, ok, err := client.GetPublicKey(ctx, user)
	if err != nil || !ok || pem != "PEM-DATA" {
		t.Fatalf("key after publish: %q ok=%v err=%v", pem, ok, err)
	}

	// Publishing again overwrites.
	if err := client.PublishPublicKey(ctx, user, "PEM-2"); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if pem, _, _ := client.GetPublicKey(ctx, user); pem != "PEM-2" {
		t.Fatalf("key not replaced: %q", pem)
	}
}

func TestAppendRejectsIncompleteEnvelope(t *testing.T) {
	_, client := newTestRelay(t)
	ctx := context.Background()

	bad := envelope("alice", "c1")
	bad.EncryptedKeys = nil
	if _, err := client.AppendMessage(ctx, room, bad); err == nil {
		t.Fatal("append of envelope without wrapped keys succeeded")
	}

	bad = envelope("alice", "")
	if _, err := client.AppendMessage(ctx, room, bad); err == nil {
		t.Fatal("append of envelope without ciphertext succeeded")
	}
}
