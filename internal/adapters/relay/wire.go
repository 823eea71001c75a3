package relay

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/okian/readfeed/internal/domain/model"
)

// Relay message labels.
const (
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelEvent  = "EVENT"
	labelEOSE   = "EOSE"
	labelClosed = "CLOSED"
	labelNotice = "NOTICE"
)

// frame is a decoded relay-to-client message.
type frame struct {
	label   string
	subID   string
	event   model.RawEvent
	message string
}

func encodeReq(subID string, f model.Filter) ([]byte, error) {
	return json.Marshal([]any{labelReq, subID, f})
}

func encodeClose(subID string) ([]byte, error) {
	return json.Marshal([]string{labelClose, subID})
}

// decodeFrame parses one relay message. Frames we do not understand and
// events missing required fields yield ErrMalformedFrame.
func decodeFrame(data []byte) (frame, error) {
	if !gjson.ValidBytes(data) {
		return frame{}, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	msg := gjson.ParseBytes(data)
	if !msg.IsArray() {
		return frame{}, fmt.Errorf("%w: not an array", ErrMalformedFrame)
	}

	f := frame{label: msg.Get("0").String()}
	switch f.label {
	case labelEvent:
		f.subID = msg.Get("1").String()
		ev, err := decodeEvent(msg.Get("2"))
		if err != nil {
			return frame{}, err
		}
		f.event = ev
	case labelEOSE:
		f.subID = msg.Get("1").String()
	case labelClosed:
		f.subID = msg.Get("1").String()
		f.message = msg.Get("2").String()
	case labelNotice:
		f.message = msg.Get("1").String()
	default:
		return frame{}, fmt.Errorf("%w: unknown label %q", ErrMalformedFrame, f.label)
	}
	if f.label != labelNotice && f.subID == "" {
		return frame{}, fmt.Errorf("%w: missing subscription id", ErrMalformedFrame)
	}
	return f, nil
}

func decodeEvent(v gjson.Result) (model.RawEvent, error) {
	if !v.IsObject() {
		return model.RawEvent{}, fmt.Errorf("%w: event is not an object", ErrMalformedFrame)
	}
	kind := v.Get("kind")
	created := v.Get("created_at")
	ev := model.RawEvent{
		ID:        v.Get("id").String(),
		AuthorKey: v.Get("pubkey").String(),
		Kind:      int(kind.Int()),
		CreatedAt: created.Int(),
		Content:   v.Get("content").String(),
	}
	if ev.ID == "" || ev.AuthorKey == "" || kind.Type != gjson.Number || created.Type != gjson.Number {
		return model.RawEvent{}, fmt.Errorf("%w: event missing required fields", ErrMalformedFrame)
	}

	for _, t := range v.Get("tags").Array() {
		if !t.IsArray() {
			continue
		}
		parts := t.Array()
		if len(parts) == 0 {
			continue
		}
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = p.String()
		}
		ev.Tags = append(ev.Tags, model.NewTag(strs...))
	}
	return ev, nil
}
