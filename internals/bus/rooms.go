package bus

import "fmt"

// Room name builders. Every user is implicitly subscribed to their personal
// room; the others are joined explicitly via client commands.

func PersonalRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func ConversationRoom(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func PostRoom(postID string) string {
	return fmt.Sprintf("post:%s", postID)
}

func StreamRoom(streamID string) string {
	return fmt.Sprintf("stream:%s", streamID)
}
