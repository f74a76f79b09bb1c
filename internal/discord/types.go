// Package discord provides the Discord transport: a gateway client for
// inbound message events and a REST client for outbound messages and
// typing indicators.
package discord

import "encoding/json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents the relay needs: guild messages, direct messages,
// and the message content privilege.
const (
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15
)

// payload is the envelope every gateway frame travels in.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData is the opcode 10 payload.
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // milliseconds
}

// identifyData is the opcode 2 payload.
type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// resumeData is the opcode 6 payload.
type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// readyData is the READY dispatch payload; only the fields the relay
// needs.
type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
}

// User is a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Message is a MESSAGE_CREATE dispatch payload.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
	Mentions  []User `json:"mentions"`
}

// Direct reports whether the message arrived on a direct-message
// channel. Guild messages always carry a guild ID; DMs never do.
func (m *Message) Direct() bool {
	return m.GuildID == ""
}

// MentionsUser reports whether the given user appears in the message's
// mention list.
func (m *Message) MentionsUser(userID string) bool {
	for _, u := range m.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}
