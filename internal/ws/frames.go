package ws

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"realtime-service/internal/apperr"
	"realtime-service/internal/models"
)

var validate = validator.New()

// DecodeFrame parses and validates an inbound frame into v.
func DecodeFrame(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("malformed frame")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Validation("invalid " + strings.ToLower(verrs[0].Field()))
		}
		return apperr.Validation("invalid frame")
	}
	return nil
}

// ErrorFrame converts an operation error into the frame sent to the origin
// connection. Internal causes never reach the client.
func ErrorFrame(err error) models.ErrorEvent {
	return models.ErrorEvent{
		Type:    models.EventError,
		Code:    string(apperr.KindOf(err)),
		Message: apperr.PublicMessage(err),
	}
}
