package dto

import "encoding/json"

// Inbound is a client message over the persistent connection. Data is kept
// raw because its shape depends on Type (see the handlers package).
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DestinationPayload is the object form of a destination: either an address
// or direct coordinates. The string form (a bare address) is handled
// separately at the boundary.
type DestinationPayload struct {
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// LocationPayload carries a GPS fix.
type LocationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Outbound is a server message: an ack, an error, a voice instruction, or an
// arrival notification.
type Outbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	OutboundAck           = "ack"
	OutboundError         = "error"
	OutboundVoiceGuidance = "voice_guidance"
	OutboundNavigationEnd = "navigation_end"
)
