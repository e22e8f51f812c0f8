package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// invalidJotError reports well-formed JSON that is not an acceptable jot.
type invalidJotError struct {
	msg string
}

func (e *invalidJotError) Error() string { return e.msg }

type envelope struct {
	Type string `json:"type" validate:"required,max=64"`
}

type locationJot struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	// Timestamp accepts a JSON number or a numeric string.
	Timestamp json.Number `json:"timestamp" validate:"omitempty,numeric"`
}

type stepsJot struct {
	Steps *int64 `json:"steps" validate:"required,gte=0"`
}

// validateJot checks raw is a JSON object with a type, and that known types
// carry their required fields. It returns the jot type.
func (s *Server) validateJot(raw []byte) (string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", errors.New("body is empty")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("body is not a JSON object: %w", err)
	}
	if fields == nil {
		return "", errors.New("body is not a JSON object")
	}

	var env envelope
	if typeRaw, ok := fields["type"]; ok {
		if err := json.Unmarshal(typeRaw, &env.Type); err != nil {
			return "", &invalidJotError{msg: "type must be a string"}
		}
	}
	env.Type = strings.TrimSpace(env.Type)
	if err := s.validate.Struct(env); err != nil {
		return "", &invalidJotError{msg: describe(err)}
	}

	var target any
	switch env.Type {
	case "location":
		target = &locationJot{}
	case "steps":
		target = &stepsJot{}
	default:
		return env.Type, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return "", &invalidJotError{msg: fmt.Sprintf("%s jot has malformed fields", env.Type)}
	}
	if err := s.validate.Struct(target); err != nil {
		return "", &invalidJotError{msg: describe(err)}
	}
	return env.Type, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
