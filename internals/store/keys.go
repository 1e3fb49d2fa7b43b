package store

import "fmt"

const (
	KeyPrefixCall      = "call:"
	KeyPrefixCallToken = "call-token:"
	KeyPrefixGrace     = "grace:"
	KeyPrefixOnline    = "online:"
	KeyPrefixReport    = "report:"
	KeyPrefixChat      = "chat:"

	// Default lifetimes in seconds; the config layer may override them.
	CallTTL     = 60  // refreshed on accept
	GraceTTL    = 65
	PresenceTTL = 60  // refreshed on heartbeat
	ReportTTL   = 600 // refreshed on each increment
)

func CallKey(roomID string) string {
	return fmt.Sprintf("%s%s", KeyPrefixCall, roomID)
}

func CallTokenKey(roomID, token string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixCallToken, roomID, token)
}

func GraceKey(streamID string) string {
	return fmt.Sprintf("%s%s", KeyPrefixGrace, streamID)
}

func OnlineKey(userID string) string {
	return fmt.Sprintf("%s%s", KeyPrefixOnline, userID)
}

func ReportKey(contextID, targetID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixReport, contextID, targetID)
}

func ChatKey(streamID string) string {
	return fmt.Sprintf("%s%s", KeyPrefixChat, streamID)
}
