package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Lobby:
		o.printLobby(v)
	case LobbyList:
		o.printLobbyList(v)
	case JoinTicket:
		o.printJoinTicket(v)
	case ChannelMessage:
		o.printChannelMessage(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Lobby response type (matches API)
type Lobby struct {
	Code        string           `json:"code"`
	State       string           `json:"state"`
	HasPasscode bool             `json:"has_passcode"`
	Config      LobbyConfig      `json:"config"`
	Members     []LobbyMember    `json:"members"`
	Connections *ConnectionStats `json:"connections,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// LobbyConfig response type
type LobbyConfig struct {
	MaxPlayers               int  `json:"max_players"`
	AllowReconnects          bool `json:"allow_reconnects"`
	AllowPregameReconnects   bool `json:"allow_pregame_reconnects"`
	AllowSpectatorReconnects bool `json:"allow_spectator_reconnects"`
	KillDisconnectedPlayers  bool `json:"kill_disconnected_players"`
}

// LobbyMember response type
type LobbyMember struct {
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Connected   bool      `json:"connected"`
	Eliminated  bool      `json:"eliminated,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ConnectionStats response type
type ConnectionStats struct {
	Reservations int `json:"reservations"`
	Pending      int `json:"pending"`
	Sessions     int `json:"sessions"`
	Connected    int `json:"connected"`
	Reconnecting int `json:"reconnecting"`
}

// LobbyList response type
type LobbyList struct {
	Codes []string `json:"codes"`
}

// JoinTicket response type
type JoinTicket struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	GameCode    string `json:"game_code"`
}

// ChannelMessage is a message received on the player channel
type ChannelMessage struct {
	Type     string   `json:"type"`
	Reasons  []string `json:"reasons,omitempty"`
	GameCode string   `json:"gamecode,omitempty"`
}

// HealthResult response type
type HealthResult struct {
	Status        string `json:"status"`
	ActiveLobbies int    `json:"active_lobbies"`
}

func (o *Output) printLobby(l Lobby) {
	fmt.Printf("Lobby: %s\n", l.Code)
	fmt.Printf("State: %s\n", l.State)
	if l.HasPasscode {
		fmt.Println("Passcode: required")
	}
	fmt.Printf("Max Players: %d\n", l.Config.MaxPlayers)
	fmt.Printf("Reconnects: %s\n", o.reconnectPolicy(l.Config))
	if l.Connections != nil {
		c := l.Connections
		fmt.Printf("Connections: %d reserved, %d pending, %d sessions (%d connected, %d reconnecting)\n",
			c.Reservations, c.Pending, c.Sessions, c.Connected, c.Reconnecting)
	}
	fmt.Printf("Members (%d):\n", len(l.Members))
	for _, m := range l.Members {
		status := "connected"
		if !m.Connected {
			status = "disconnected"
		}
		if m.Eliminated {
			status += ", eliminated"
		}
		fmt.Printf("  - %s - %s (%s)\n", m.DisplayName, m.Role, status)
	}
}

func (o *Output) reconnectPolicy(c LobbyConfig) string {
	if !c.AllowReconnects {
		return "off"
	}
	var parts []string
	if c.AllowPregameReconnects {
		parts = append(parts, "pregame")
	}
	parts = append(parts, "in game")
	if c.AllowSpectatorReconnects {
		parts = append(parts, "spectators")
	}
	policy := strings.Join(parts, ", ")
	if c.KillDisconnectedPlayers {
		policy += " (disconnected players are eliminated)"
	}
	return policy
}

func (o *Output) printLobbyList(l LobbyList) {
	if len(l.Codes) == 0 {
		fmt.Println("No lobbies")
		return
	}
	for _, code := range l.Codes {
		fmt.Println(code)
	}
}

func (o *Output) printJoinTicket(t JoinTicket) {
	fmt.Printf("Reserved %s in lobby %s\n", t.DisplayName, t.GameCode)
	fmt.Printf("Token: %s\n", t.Token)
}

func (o *Output) printChannelMessage(m ChannelMessage) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	switch {
	case len(m.Reasons) > 0:
		fmt.Printf("[%s] %s: %s\n", timestamp, m.Type, strings.Join(m.Reasons, "; "))
	case m.GameCode != "":
		fmt.Printf("[%s] %s (%s)\n", timestamp, m.Type, m.GameCode)
	default:
		fmt.Printf("[%s] %s\n", timestamp, m.Type)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Active lobbies: %d\n", h.ActiveLobbies)
}
