// Package battlev1 defines the client-facing Battleships gRPC contract: the
// request and response messages exchanged on the Game stream and the service
// descriptor used to register and call it.
//
// Messages travel as JSON using the codec registered under CodecName.
package battlev1

// StatusState is the outcome of an attack as reported by the defender.
type StatusState string

const (
	StatusMiss   StatusState = "MISS"
	StatusHit    StatusState = "HIT"
	StatusDefeat StatusState = "DEFEAT"
)

// Valid reports whether s is one of the defined states.
func (s StatusState) Valid() bool {
	switch s {
	case StatusMiss, StatusHit, StatusDefeat:
		return true
	default:
		return false
	}
}

// TurnState is a turn-level event pushed to the client.
type TurnState string

const (
	TurnBegin TurnState = "BEGIN"
	TurnStart TurnState = "START_TURN"
	TurnStop  TurnState = "STOP_TURN"
	TurnWin   TurnState = "WIN"
	TurnLose  TurnState = "LOSE"
)

// Join is the first message of every stream.
type Join struct {
	ID string `json:"id"`
}

// Attack targets one cell, e.g. "G4". The format is agreed between clients.
type Attack struct {
	Vector string `json:"vector"`
}

// Status carries a StatusState.
type Status struct {
	State StatusState `json:"state"`
}

func (j *Join) GetID() string {
	if j == nil {
		return ""
	}
	return j.ID
}

func (a *Attack) GetVector() string {
	if a == nil {
		return ""
	}
	return a.Vector
}

func (s *Status) GetState() StatusState {
	if s == nil {
		return ""
	}
	return s.State
}

// Request is a client message. Exactly one field is set.
type Request struct {
	Join   *Join   `json:"join,omitempty"`
	Move   *Attack `json:"move,omitempty"`
	Report *Status `json:"report,omitempty"`
}

// GetJoin returns the join payload or nil.
func (r *Request) GetJoin() *Join {
	if r == nil {
		return nil
	}
	return r.Join
}

// GetMove returns the attack payload or nil.
func (r *Request) GetMove() *Attack {
	if r == nil {
		return nil
	}
	return r.Move
}

// GetReport returns the status payload or nil.
func (r *Request) GetReport() *Status {
	if r == nil {
		return nil
	}
	return r.Report
}

// Response is a server event. Exactly one field is set.
type Response struct {
	Turn   TurnState `json:"turn,omitempty"`
	Move   *Attack   `json:"move,omitempty"`
	Report *Status   `json:"report,omitempty"`
}

// GetTurn returns the turn event or "".
func (r *Response) GetTurn() TurnState {
	if r == nil {
		return ""
	}
	return r.Turn
}

// GetMove returns the incoming attack or nil.
func (r *Response) GetMove() *Attack {
	if r == nil {
		return nil
	}
	return r.Move
}

// GetReport returns the attack result or nil.
func (r *Response) GetReport() *Status {
	if r == nil {
		return nil
	}
	return r.Report
}

// JoinRequest builds the opening message for playerID.
func JoinRequest(playerID string) *Request {
	return &Request{Join: &Join{ID: playerID}}
}

// MoveRequest builds an attack on vector.
func MoveRequest(vector string) *Request {
	return &Request{Move: &Attack{Vector: vector}}
}

// ReportRequest builds a status report.
func ReportRequest(state StatusState) *Request {
	return &Request{Report: &Status{State: state}}
}

// TurnResponse builds a turn event.
func TurnResponse(state TurnState) *Response {
	return &Response{Turn: state}
}

// MoveResponse builds an incoming-attack event.
func MoveResponse(vector string) *Response {
	return &Response{Move: &Attack{Vector: vector}}
}

// ReportResponse builds an attack-result event.
func ReportResponse(state StatusState) *Response {
	return &Response{Report: &Status{State: state}}
}
