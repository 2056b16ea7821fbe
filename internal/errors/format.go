package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI renders an error as the short message/hint/code block
// the CLI prints before exiting.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ve, ok := err.(*VitrinaError)
	if !ok {
		ve = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", ve.Message))

	if ve.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ve.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ve.Code))

	return sb.String()
}

// FormatForLog flattens an error into slog attributes, one key per
// classified field plus detail_* for attached details.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ve, ok := err.(*VitrinaError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ve.Code,
		"message":    ve.Message,
		"category":   string(ve.Category),
		"severity":   string(ve.Severity),
		"retryable":  ve.Retryable,
	}

	if ve.Cause != nil {
		result["cause"] = ve.Cause.Error()
	}

	if ve.Suggestion != "" {
		result["suggestion"] = ve.Suggestion
	}

	for k, v := range ve.Details {
		result["detail_"+k] = v
	}

	return result
}
