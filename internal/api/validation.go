package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var requestValidator = validator.New()

// textPolicy strips any markup from user-supplied free text (names,
// addresses). Sanitize escapes entities, so plain text like O'Brien has to be
// unescaped back after stripping.
var textPolicy = bluemonday.StrictPolicy()

func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "email":
				return fmt.Errorf("invalid email format")
			case "len":
				return fmt.Errorf("invalid %s length", field)
			case "min":
				return fmt.Errorf("%s is too short", field)
			case "max":
				return fmt.Errorf("%s is too long", field)
			case "numeric":
				return fmt.Errorf("%s must contain only digits", field)
			case "latitude", "longitude":
				return fmt.Errorf("invalid %s", field)
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}

		return fmt.Errorf("invalid request payload")
	}

	return nil
}
