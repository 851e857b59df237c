// Package relay implements the server-to-server turn protocol that two game
// processes run over a shared pub/sub channel named after the game id.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/battleship/internal/gameserver/battlev1"
)

// ErrDecode marks a relay payload that is not a valid envelope.
var ErrDecode = errors.New("relay: undecodable message")

// Kind identifies a relay message.
type Kind string

const (
	KindBegin    Kind = "begin"
	KindStopTurn Kind = "stop_turn"
	KindAttack   Kind = "attack"
	KindStatus   Kind = "status"
	KindLost     Kind = "lost"
)

// Kinds is the closed set of message kinds.
var Kinds = []Kind{KindBegin, KindStopTurn, KindAttack, KindStatus, KindLost}

// Valid reports whether k belongs to Kinds.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Message is the envelope published on a game channel. Player is the
// originator, so a receiver can tell its own echo from the opponent.
type Message struct {
	Kind   Kind   `json:"type"`
	Player string `json:"player"`
	Data   string `json:"data"`
}

// Encode serialises m to the JSON wire form.
func (m Message) Encode() ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("encoding relay message: unknown kind %q", m.Kind)
	}
	return json.Marshal(m)
}

// envelope uses pointers to tell a missing field from an empty one.
type envelope struct {
	Kind   *Kind   `json:"type"`
	Player *string `json:"player"`
	Data   *string `json:"data"`
}

// Decode parses a wire payload. All three fields must be present and the kind
// must be known; otherwise the error wraps ErrDecode.
func Decode(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Kind == nil || env.Player == nil || env.Data == nil {
		return Message{}, fmt.Errorf("%w: missing field in %q", ErrDecode, payload)
	}
	if !env.Kind.Valid() {
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrDecode, *env.Kind)
	}
	return Message{Kind: *env.Kind, Player: *env.Player, Data: *env.Data}, nil
}

// Status codes carried in the Data field of a status message.
var statusCodes = map[battlev1.StatusState]string{
	battlev1.StatusMiss:   "0",
	battlev1.StatusHit:    "1",
	battlev1.StatusDefeat: "2",
}

// StatusCode returns the wire code for s.
func StatusCode(s battlev1.StatusState) (string, error) {
	code, ok := statusCodes[s]
	if !ok {
		return "", fmt.Errorf("unknown status state %q", s)
	}
	return code, nil
}

// ParseStatusCode maps a wire code back to a state. Unknown codes wrap ErrDecode.
func ParseStatusCode(code string) (battlev1.StatusState, error) {
	for s, c := range statusCodes {
		if c == code {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status code %q", ErrDecode, code)
}
