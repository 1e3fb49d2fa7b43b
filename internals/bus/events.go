package bus

import "context"

// Event is one entry of the multicast catalogue. Each event carries its wire
// name so handlers can switch exhaustively on concrete types instead of
// inspecting loosely shaped payloads.
type Event interface {
	EventName() string
}

// Publisher delivers an event to every connection subscribed to a room.
// Delivery is fire-and-forget: there is no acknowledgement channel and
// offline subscribers miss the event.
type Publisher interface {
	Publish(ctx context.Context, room string, event Event) error
}

const (
	EventIncomingCall    = "incoming-call"
	EventCallAccepted    = "call-accepted"
	EventCallRejected    = "call-rejected"
	EventCallTimeout     = "call-timeout"
	EventCallPeerLeft    = "call-peer-left"
	EventStreamHostEnded = "stream-host-ended"
	EventPresenceOnline  = "presence-online"
	EventPresenceOffline = "presence-offline"
	EventForceRemove     = "force-remove-from-context"
	EventViewerBanned    = "viewer-banned"
)

type IncomingCall struct {
	From         string `json:"from"`
	Token        string `json:"token"`
	MediaType    string `json:"mediaType"`
	RoomID       string `json:"roomId"`
	CallerName   string `json:"callerName"`
	CallerAvatar string `json:"callerAvatar"`
}

func (IncomingCall) EventName() string { return EventIncomingCall }

type CallAccepted struct {
	RoomID     string `json:"roomId"`
	ReceiverID string `json:"receiverId"`
	MediaType  string `json:"mediaType"`
	Token      string `json:"token"`
}

func (CallAccepted) EventName() string { return EventCallAccepted }

type CallRejected struct {
	RoomID       string `json:"roomId"`
	RejectedBy   string `json:"rejectedBy"`
	CallerName   string `json:"callerName"`
	CallerAvatar string `json:"callerAvatar"`
}

func (CallRejected) EventName() string { return EventCallRejected }

// TimeoutReasonNoAnswer is the only timeout reason the catalogue defines.
const TimeoutReasonNoAnswer = "NO_ANSWER"

type CallTimeout struct {
	RoomID  string `json:"roomId"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (CallTimeout) EventName() string { return EventCallTimeout }

type CallPeerLeft struct {
	Message    string `json:"message"`
	PeerName   string `json:"peerName"`
	PeerAvatar string `json:"peerAvatar"`
}

func (CallPeerLeft) EventName() string { return EventCallPeerLeft }

type StreamHostEnded struct {
	HostDisplayName string `json:"hostDisplayName"`
}

func (StreamHostEnded) EventName() string { return EventStreamHostEnded }

type PresenceOnline struct {
	UserID string `json:"userId"`
}

func (PresenceOnline) EventName() string { return EventPresenceOnline }

type PresenceOffline struct {
	UserID   string `json:"userId"`
	LastSeen int64  `json:"lastSeen"`
}

func (PresenceOffline) EventName() string { return EventPresenceOffline }

type ForceRemove struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func (ForceRemove) EventName() string { return EventForceRemove }

type ViewerBanned struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func (ViewerBanned) EventName() string { return EventViewerBanned }
