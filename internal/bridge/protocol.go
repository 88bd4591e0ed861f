package bridge

import (
	"encoding/json"

	"github.com/saveenergy/playertester/pkg/types"
)

// Message types exchanged with the player page.
const (
	typeCommand = "command"
	typeReply   = "reply"
	typeEvent   = "event"
	typeHello   = "hello"
)

// Commands sent to the page.
const (
	methodInstallShims = "installShims"
	methodCreatePlayer = "createPlayer"
	methodConfigure    = "configure"
	methodLoad         = "load"
	methodPlay         = "play"
	methodDestroy      = "destroy"
)

// eventState carries only a snapshot refresh and has no handlers.
const eventState = "state"

type commandMessage struct {
	Type   string      `json:"type"`
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// inboundMessage is the union of every page-to-harness frame.
type inboundMessage struct {
	Type   string               `json:"type"`
	ID     int64                `json:"id,omitempty"`
	Error  string               `json:"error,omitempty"`
	Name   string               `json:"name,omitempty"`
	Tracks []types.VariantTrack `json:"tracks,omitempty"`
	Media  *mediaSnapshot       `json:"media,omitempty"`
	Agent  string               `json:"agent,omitempty"`
}

type mediaSnapshot struct {
	PlaybackRate float64          `json:"playbackRate"`
	CurrentTime  float64          `json:"currentTime"`
	Buffered     types.TimeRanges `json:"buffered"`
}

type loadParams struct {
	URL string `json:"url"`
}

func decodeInbound(data []byte) (inboundMessage, error) {
	var msg inboundMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
