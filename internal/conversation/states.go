package conversation

import (
	"github.com/tulikaff659/zolo/internal/assets"
	"github.com/tulikaff659/zolo/internal/transport"
)

type Flow int

const (
	FlowAssetUpload Flow = iota + 1
	FlowLinkSetup
	FlowBroadcast
)

func (f Flow) String() string {
	switch f {
	case FlowAssetUpload:
		return "asset-upload"
	case FlowLinkSetup:
		return "link-setup"
	case FlowBroadcast:
		return "broadcast-compose"
	}
	return "unknown"
}

// State is one step of an admin dialog. Each implementation carries only
// what its step needs.
type State interface {
	Flow() Flow
	Step() string
}

// AwaitingFile waits for a document. A nil Slot means the cached asset
// used by /start and broadcast download buttons.
type AwaitingFile struct {
	Slot *assets.Slot
}

type AwaitingLinkLabel struct{}

type AwaitingLinkURL struct {
	Label string
}

type AwaitingPayload struct{}

type AwaitingButtonChoice struct {
	Payload transport.MessageRef
}

type AwaitingButtonLabel struct {
	Payload transport.MessageRef
}

type AwaitingButtonURL struct {
	Payload transport.MessageRef
	Label   string
}

func (AwaitingFile) Flow() Flow         { return FlowAssetUpload }
func (AwaitingLinkLabel) Flow() Flow    { return FlowLinkSetup }
func (AwaitingLinkURL) Flow() Flow      { return FlowLinkSetup }
func (AwaitingPayload) Flow() Flow      { return FlowBroadcast }
func (AwaitingButtonChoice) Flow() Flow { return FlowBroadcast }
func (AwaitingButtonLabel) Flow() Flow  { return FlowBroadcast }
func (AwaitingButtonURL) Flow() Flow    { return FlowBroadcast }

func (AwaitingFile) Step() string         { return "awaiting_file" }
func (AwaitingLinkLabel) Step() string    { return "awaiting_label" }
func (AwaitingLinkURL) Step() string      { return "awaiting_url" }
func (AwaitingPayload) Step() string      { return "awaiting_payload" }
func (AwaitingButtonChoice) Step() string { return "awaiting_button_choice" }
func (AwaitingButtonLabel) Step() string  { return "awaiting_button_label" }
func (AwaitingButtonURL) Step() string    { return "awaiting_button_url" }

type InputKind int

const (
	InputText InputKind = iota + 1
	InputDocument
	InputMedia
	InputChoice
)

type Choice string

const (
	ChoiceAttach Choice = "attach"
	ChoiceNone   Choice = "none"
)

// Input is one classified admin message or button press.
type Input struct {
	Kind     InputKind
	Text     string
	Document *transport.Document
	Message  transport.MessageRef
	Choice   Choice
}

// FromMessage classifies a gateway message.
func FromMessage(m *transport.Message) Input {
	in := Input{Text: m.Text, Document: m.Document, Message: m.Ref()}
	switch {
	case m.Document != nil:
		in.Kind = InputDocument
	case m.HasMedia:
		in.Kind = InputMedia
	default:
		in.Kind = InputText
	}
	return in
}

func ChoiceInput(c Choice) Input { return Input{Kind: InputChoice, Choice: c} }
