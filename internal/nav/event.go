package nav

// EventType discriminates asynchronous events pushed to a session's client.
type EventType string

const (
	EventVoiceGuidance EventType = "voice_guidance"
	EventNavigationEnd EventType = "navigation_end"
	EventError         EventType = "error"
)

// Event is a single outbound message for one session. Message is user-facing
// text ready to be spoken or shown.
type Event struct {
	Type    EventType
	Message string
}
