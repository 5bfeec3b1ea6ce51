// Package schema validates client requests and commands before they reach
// the services.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"recorder-transcriber-service/internal/models"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid request")

// Validator checks request payloads.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a request or command. Unknown types are accepted.
func (v *Validator) Validate(payload any) error {
	switch p := payload.(type) {
	case models.WsCommand:
		return v.command(p)
	case *models.WsCommand:
		return v.command(*p)
	case models.TranscribeRequest:
		return v.transcribe(p)
	case *models.TranscribeRequest:
		return v.transcribe(*p)
	case models.EnhancementRequest:
		return v.enhancement(p)
	case *models.EnhancementRequest:
		return v.enhancement(*p)
	default:
		return nil
	}
}

func (v *Validator) command(c models.WsCommand) error {
	switch c.Action {
	case models.ActionStart, models.ActionStop:
		return nil
	case "":
		return fmt.Errorf("%w: action is required", ErrInvalid)
	default:
		return fmt.Errorf("%w: unknown action %q, expected %q or %q", ErrInvalid, c.Action, models.ActionStart, models.ActionStop)
	}
}

func (v *Validator) transcribe(r models.TranscribeRequest) error {
	if strings.TrimSpace(r.RecordingID) == "" {
		return fmt.Errorf("%w: recording_id is required", ErrInvalid)
	}
	return nil
}

func (v *Validator) enhancement(r models.EnhancementRequest) error {
	if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.RecordingID) == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalid)
	}
	return nil
}
