package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// navctl is a line-oriented test client for the relay: it plays the role of
// the in-car device (speech input and GPS) from a terminal.
//
// Commands:
//
//	dest <address>      set destination by address
//	dest <lat> <lon>    set destination by coordinates
//	loc <lat> <lon>     send a location update
//	stop                end navigation
//	reroute             force route recomputation
//	quit                close the connection
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	serverURL := flag.String("server", getEnv("NAV_SERVER_URL", "ws://localhost:8000/ws"), "relay websocket URL")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("connect %s: %v", *serverURL, err)
	}
	defer conn.Close()
	log.Printf("connected url=%s", *serverURL)

	// Print server events as they arrive.
	go func() {
		for {
			var msg struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				log.Printf("connection closed: %v", err)
				os.Exit(0)
			}
			fmt.Printf("<- [%s] %s\n", msg.Type, msg.Message)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			return
		}

		payload, err := buildMessage(line)
		if err != nil {
			fmt.Println(err)
			continue
		}

		if err := conn.WriteJSON(payload); err != nil {
			log.Fatalf("send: %v", err)
		}
	}
}

type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func buildMessage(line string) (*message, error) {
	fields := strings.Fields(line)

	switch fields[0] {
	case "dest":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: dest <address> | dest <lat> <lon>")
		}
		if len(fields) == 3 {
			if lat, lon, err := parseLatLon(fields[1], fields[2]); err == nil {
				return &message{Type: "destination", Data: map[string]float64{
					"latitude":  lat,
					"longitude": lon,
				}}, nil
			}
		}
		return &message{Type: "destination", Data: strings.Join(fields[1:], " ")}, nil

	case "loc":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: loc <lat> <lon>")
		}
		lat, lon, err := parseLatLon(fields[1], fields[2])
		if err != nil {
			return nil, err
		}
		return &message{Type: "location", Data: map[string]float64{
			"latitude":  lat,
			"longitude": lon,
		}}, nil

	case "stop", "reroute":
		return &message{Type: "command", Data: fields[0]}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseLatLon(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", lonStr)
	}
	return lat, lon, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
