package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nav-relay-service/internal/api/dto"
	"nav-relay-service/internal/domain"
	"nav-relay-service/internal/nav"
)

const writeTimeout = 10 * time.Second

// NavigationHandler owns the websocket endpoint: one connection is one
// navigation session. Inbound messages are dispatched to the engine in
// arrival order; engine events and acks share a single guarded writer so a
// slow client fails its own connection only.
type NavigationHandler struct {
	Engine   *nav.Engine
	upgrader websocket.Upgrader
}

func NewNavigationHandler(engine *nav.Engine) *NavigationHandler {
	return &NavigationHandler{
		Engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay trusts its local network; clients are embedded
			// devices, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and runs the session's event loop until the
// client disconnects or is dropped.
func (h *NavigationHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("op=ws_upgrade err=%v", err)
		return
	}
	defer conn.Close()

	sess := h.Engine.Connect()
	defer h.Engine.Disconnect(sess.ID)

	var writeMu sync.Mutex
	send := func(msg dto.Outbound) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}

	// Pump engine events to the client. The stream closes on disconnect or
	// when the engine drops the session; a write failure ends the session by
	// closing the connection under the read loop.
	go func() {
		for evt := range sess.Events() {
			if err := send(dto.Outbound{Type: string(evt.Type), Message: evt.Message}); err != nil {
				break
			}
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("session=%s op=ws_read err=%v", sess.ID, err)
			}
			return
		}

		var msg dto.Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = send(dto.Outbound{Type: dto.OutboundError, Message: "잘못된 메시지 형식입니다"})
			continue
		}

		ack, err := h.dispatch(context.Background(), sess.ID, msg)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				// Event for a session that no longer exists: drop silently.
				return
			}
			log.Printf("session=%s op=%s err=%v", sess.ID, msg.Type, err)
			_ = send(dto.Outbound{Type: dto.OutboundError, Message: userMessage(err)})
			continue
		}
		_ = send(dto.Outbound{Type: dto.OutboundAck, Message: ack})
	}
}

// dispatch routes one inbound message to the matching engine operation.
func (h *NavigationHandler) dispatch(ctx context.Context, sessionID string, msg dto.Inbound) (string, error) {
	switch msg.Type {
	case "destination":
		req, err := parseDestination(msg.Data)
		if err != nil {
			return "", err
		}
		return h.Engine.SetDestination(ctx, sessionID, req)

	case "location":
		var p dto.LocationPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.Latitude == nil || p.Longitude == nil {
			return "", fmt.Errorf("%w: location requires latitude and longitude", domain.ErrInvalidCoordinate)
		}
		return h.Engine.UpdateLocation(ctx, sessionID, domain.Coordinates{Lat: *p.Latitude, Lon: *p.Longitude})

	case "command":
		var cmd string
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return "", errors.New("command must be a string")
		}
		return h.Engine.HandleCommand(ctx, sessionID, cmd)

	default:
		return "", fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// parseDestination resolves the polymorphic destination payload (bare
// address string, {address}, or {latitude, longitude}) into the explicit
// request variant before it enters the engine.
func parseDestination(raw json.RawMessage) (domain.DestinationRequest, error) {
	var address string
	if err := json.Unmarshal(raw, &address); err == nil {
		if address == "" {
			return domain.DestinationRequest{}, fmt.Errorf("%w: empty address", domain.ErrGeocodeNotFound)
		}
		return domain.AddressDestination(address), nil
	}

	var p dto.DestinationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.DestinationRequest{}, errors.New("unsupported destination payload")
	}

	if p.Latitude != nil && p.Longitude != nil {
		return domain.CoordinateDestination(domain.Coordinates{Lat: *p.Latitude, Lon: *p.Longitude}), nil
	}
	if p.Address != "" {
		return domain.AddressDestination(p.Address), nil
	}

	return domain.DestinationRequest{}, errors.New("unsupported destination payload")
}

// userMessage maps failure kinds to the user-facing phrase spoken to the
// client. Internal detail stays in the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return "유효하지 않은 좌표입니다"
	case errors.Is(err, domain.ErrGeocodeNotFound):
		return "목적지를 찾을 수 없습니다"
	case errors.Is(err, domain.ErrGeocodeUnavailable):
		return "주소 검색 서비스에 연결할 수 없습니다"
	case errors.Is(err, domain.ErrRouteUnavailable):
		return "경로를 찾을 수 없습니다"
	default:
		return "요청을 처리할 수 없습니다"
	}
}
