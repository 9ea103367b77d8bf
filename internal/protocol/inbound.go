// Package protocol defines the JSON frames exchanged over the room socket.
//
// Every frame is an object with a mandatory "type". Inbound frames are parsed
// into a closed set of Go types; anything else is rejected.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dkeye/Board/internal/domain"
	"github.com/go-playground/validator/v10"
)

const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeSendMessage = "send-message"
	TypePing        = "ping"

	TypeRoomJoined = "room-joined"
	TypeMessage    = "message"
	TypeError      = "error"
	TypePong       = "pong"
)

// MaxMessageLen is counted in characters.
const MaxMessageLen = 16 * 1024

// MaxFrameBytes bounds the encoded size of any valid inbound frame. A JSON
// string may spend up to 12 bytes per character (a \uXXXX surrogate pair),
// so a frame within the field limits always fits; 1 KiB covers keys and type.
const MaxFrameBytes = (MaxMessageLen+domain.MaxRoomIDLen)*12 + 1024

var (
	// ErrBadFrame means the payload is not a JSON object with a string type.
	ErrBadFrame = errors.New("malformed frame")
	// ErrUnknownFrame means the type is not one this server handles.
	ErrUnknownFrame = errors.New("unknown frame type")
)

// ValidationError reports a well-formed frame whose fields are missing,
// wrong-typed or out of range. Its text is safe to send back to the sender.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Inbound is implemented only by the frame types in this file.
type Inbound interface {
	inbound()
}

type JoinRoom struct {
	RoomID domain.RoomID `json:"roomId" validate:"required,roomid"`
}

type LeaveRoom struct {
	RoomID domain.RoomID `json:"roomId" validate:"required,roomid"`
}

type SendMessage struct {
	RoomID  domain.RoomID `json:"roomId" validate:"required,roomid"`
	Message string        `json:"message" validate:"required,max=16384"`
}

type Ping struct{}

func (JoinRoom) inbound()    {}
func (LeaveRoom) inbound()   {}
func (SendMessage) inbound() {}
func (Ping) inbound()        {}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return domain.RoomID(fl.Field().String()).Valid()
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// Parse decodes one inbound frame. It returns an error wrapping ErrBadFrame or
// ErrUnknownFrame for protocol errors and a *ValidationError for bad fields.
func Parse(data []byte) (Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrBadFrame)
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil || typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadFrame)
	}

	var (
		frame Inbound
		err   error
	)
	switch typ {
	case TypeJoinRoom:
		var f JoinRoom
		err = decodeFields(raw, map[string]*string{"roomId": (*string)(&f.RoomID)})
		frame = f
	case TypeLeaveRoom:
		var f LeaveRoom
		err = decodeFields(raw, map[string]*string{"roomId": (*string)(&f.RoomID)})
		frame = f
	case TypeSendMessage:
		var f SendMessage
		err = decodeFields(raw, map[string]*string{
			"roomId":  (*string)(&f.RoomID),
			"message": &f.Message,
		})
		frame = f
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, typ)
	}
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(frame); err != nil {
		return nil, toValidationError(err)
	}
	return frame, nil
}

// decodeFields requires every named field to be present and a JSON string.
func decodeFields(raw map[string]json.RawMessage, fields map[string]*string) error {
	for name, dst := range fields {
		v, ok := raw[name]
		if !ok || string(v) == "null" {
			return &ValidationError{Field: name, Reason: "required"}
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return &ValidationError{Field: name, Reason: "must be a string"}
		}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Field: "frame", Reason: err.Error()}
}

// EncodeInbound renders f as a typed frame, for clients talking to the server.
func EncodeInbound(f Inbound) ([]byte, error) {
	type typed struct {
		Type string `json:"type"`
	}
	switch v := f.(type) {
	case JoinRoom:
		return Encode(struct {
			typed
			JoinRoom
		}{typed{TypeJoinRoom}, v})
	case LeaveRoom:
		return Encode(struct {
			typed
			LeaveRoom
		}{typed{TypeLeaveRoom}, v})
	case SendMessage:
		return Encode(struct {
			typed
			SendMessage
		}{typed{TypeSendMessage}, v})
	case Ping:
		return Encode(typed{TypePing})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownFrame, f)
}
