package call

import "time"

// Status is the lifecycle state of a call session. Transitions are monotonic:
// every non-pending status is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusEnded    Status = "ended"
)

// Session is the ephemeral record for one 1:1 call, stored under
// call:{roomId}. The token is kept on the record so terminal actions can
// delete the matching call-token key without a second lookup. The receiver's
// display identity is only known once the call is answered, so those fields
// stay empty until Accept.
type Session struct {
	RoomID         string    `json:"room_id"`
	CallerID       string    `json:"caller_id"`
	CallerName     string    `json:"caller_name"`
	CallerAvatar   string    `json:"caller_avatar"`
	ReceiverID     string    `json:"receiver_id"`
	ReceiverName   string    `json:"receiver_name"`
	ReceiverAvatar string    `json:"receiver_avatar"`
	MediaType      string    `json:"media_type"`
	Token          string    `json:"token"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsParty reports whether userID is one of the two original parties.
func (s *Session) IsParty(userID string) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}
