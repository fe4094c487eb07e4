package gateway

import (
	"encoding/json"

	"edbox/internal/message"

	"github.com/google/uuid"
)

// Frame event types. Clients send messageCreate; the gateway answers
// every request with an ack and pushes newMessage to room members.
const (
	EventMessageCreate = "messageCreate"
	EventAck           = "ack"
	EventNewMessage    = "newMessage"
)

// Error codes carried in error acks. Stable strings, clients switch on
// them.
const (
	CodeInvalidIdentifier    = "INVALID_IDENTIFIER"
	CodeCrossSchoolAccess    = "CROSS_SCHOOL_ACCESS"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodePermissionExpired    = "PERMISSION_EXPIRED"
	CodePermissionUsed       = "PERMISSION_USED"
	CodePermissionWrongOwner = "PERMISSION_WRONG_OWNER"
	CodeBadRequest           = "BAD_REQUEST"
	CodeRateLimited          = "RATE_LIMITED"
	CodeTransient            = "TRANSIENT"
)

// Frame is the envelope for every event in either direction. Ref is an
// opaque client-chosen request id echoed back in the matching ack.
type Frame struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AttachmentPermissionRef struct {
	PermissionID uuid.UUID `json:"permission_id" validate:"required"`
	FileName     *string   `json:"file_name,omitempty" validate:"omitempty,max=255"`
}

type MessageCreatePayload struct {
	GroupIdentifier       string                    `json:"group_identifier" validate:"required,max=512"`
	Text                  string                    `json:"text" validate:"required,max=4000"`
	AttachmentPermissions []AttachmentPermissionRef `json:"attachment_permissions" validate:"max=10,dive"`
}

type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckPayload struct {
	OK      bool                 `json:"ok"`
	Error   *AckError            `json:"error,omitempty"`
	Message *message.WireMessage `json:"message,omitempty"`
}

func encodeFrame(eventType, ref string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: eventType, Ref: ref, Payload: raw})
}
