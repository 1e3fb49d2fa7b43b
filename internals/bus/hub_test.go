package bus

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestHub() *Hub {
	return NewHub(zap.NewNop())
}

func TestClientRoomMembership(t *testing.T) {
	client := NewClient("c1", "alice", "Alice", nil, zap.NewNop())

	if !client.InRoom(PersonalRoom("alice")) {
		t.Fatal("client should start in its personal room")
	}

	client.JoinRoom(StreamRoom("s1"))
	if !client.InRoom(StreamRoom("s1")) {
		t.Fatal("join did not register")
	}

	client.LeaveRoom(StreamRoom("s1"))
	if client.InRoom(StreamRoom("s1")) {
		t.Fatal("leave did not unregister")
	}

	// The personal room cannot be left.
	client.LeaveRoom(PersonalRoom("alice"))
	if !client.InRoom(PersonalRoom("alice")) {
		t.Fatal("personal room was left")
	}
}

func TestHubDeliversToRoomMembers(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	alice := NewClient("c1", "alice", "Alice", nil, zap.NewNop())
	bob := NewClient("c2", "bob", "Bob", nil, zap.NewNop())
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	alice.JoinRoom(ConversationRoom("conv1"))
	bob.JoinRoom(ConversationRoom("conv1"))

	hub.Deliver(OutboundMessage{
		Event:     EventPresenceOnline,
		Room:      ConversationRoom("conv1"),
		Timestamp: time.Now(),
	})

	for _, client := range []*Client{alice, bob} {
		select {
		case msg := <-client.Send:
			if msg.Event != EventPresenceOnline {
				t.Errorf("%s received %q", client.UserID, msg.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s never received the message", client.UserID)
		}
	}
}

func TestHubScopesDeliveryToRoom(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	alice := NewClient("c1", "alice", "Alice", nil, zap.NewNop())
	bob := NewClient("c2", "bob", "Bob", nil, zap.NewNop())
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	hub.Deliver(OutboundMessage{
		Event:     EventIncomingCall,
		Room:      PersonalRoom("alice"),
		Timestamp: time.Now(),
	})

	select {
	case msg := <-alice.Send:
		if msg.Room != PersonalRoom("alice") {
			t.Errorf("unexpected room %q", msg.Room)
		}
	case <-time.After(time.Second):
		t.Fatal("alice never received her personal-room message")
	}

	select {
	case msg := <-bob.Send:
		t.Fatalf("bob received a message for alice's room: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
