package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var errEmptyResponse = errors.New("empty ai response")

// stripCodeFences removes a surrounding ```json ... ``` block if the model added one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeAIResponse unmarshals raw into out. Any shape mismatch is an error.
func decodeAIResponse(raw string, out any) error {
	body := stripCodeFences(raw)
	if body == "" {
		return errEmptyResponse
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("malformed ai response: %w", err)
	}
	return nil
}

func validateAll[T any](v *validator.Validate, items []T) error {
	for i := range items {
		if err := v.Struct(items[i]); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
