package gateway

// Client frame types.
const (
	TypeHello     = "hello"
	TypeUtterance = "utterance"
	TypeAction    = "action"
	TypeBye       = "bye"
)

// Server frame types.
const (
	TypeHelloAck = "hello_ack"
	TypeReply    = "reply"
	TypeError    = "error"
)

// Error codes sent in error frames.
const (
	CodeBadRequest        = "bad_request"
	CodeUnknownPersona    = "unknown_persona"
	CodeUnknownAction     = "unknown_action"
	CodeUnsupportedAction = "unsupported_action"
	CodeNoLanguageModel   = "no_language_model"
	CodeDraining          = "draining"
	CodeInternal          = "internal"
)

// ClientMessage is any frame sent by the voice pipeline. Fields not used by
// Type are ignored.
type ClientMessage struct {
	Type     string         `json:"type"`
	Persona  string         `json:"persona,omitempty"`
	Identity string         `json:"identity,omitempty"`
	Text     string         `json:"text,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Text      string `json:"text,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}
