package transport

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrUnknownFrameType is returned for frames whose type tag has no Go type.
// Callers log and drop these rather than failing the channel.
type ErrUnknownFrameType struct {
	TypeTag string
}

func (e *ErrUnknownFrameType) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.TypeTag)
}

// DecodeFrame parses an inbound frame. The type tag is sniffed first so the
// payload can be unmarshaled into the matching variant.
func DecodeFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid frame JSON")
	}
	typeTag := gjson.GetBytes(data, "type").String()

	var (
		frame Frame
		err   error
	)
	switch typeTag {
	case TypeMessage:
		var f MessageFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeGroupMessage:
		var f GroupMessageFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeReadStatus:
		var f ReadStatusFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeGroupReadStatus:
		var f GroupReadStatusFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeNotification:
		var f NotificationFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeUserStatus:
		var f UserStatusFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeError:
		var f ErrorFrame
		err = json.Unmarshal(data, &f)
		frame = f
	case TypeAuthenticate:
		var f AuthenticateFrame
		err = json.Unmarshal(data, &f)
		frame = f
	default:
		return nil, &ErrUnknownFrameType{TypeTag: typeTag}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", typeTag, err)
	}
	return frame, nil
}

// EncodeFrame marshals an outbound frame.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.frameType(), err)
	}
	return data, nil
}
