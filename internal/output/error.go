package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	valierr "github.com/mrz1836/vali/pkg/errors"
)

// ErrorOutput wraps an error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the JSON shape of one error.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// FormatError renders err for the user in the given format. A nil err
// renders nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	if format == FormatJSON {
		return encodeIndented(w, ErrorOutput{Error: toErrorDetail(err)})
	}
	return writeErrorText(w, err)
}

// toErrorDetail flattens any error into the JSON error shape. Errors
// from outside the CLI's own taxonomy become GENERAL_ERROR.
func toErrorDetail(err error) ErrorDetail {
	var ve *valierr.ValiError
	if errors.As(err, &ve) {
		return ErrorDetail{
			Code:       ve.Code,
			Message:    ve.Message,
			Details:    ve.Details,
			Suggestion: ve.Suggestion,
			ExitCode:   ve.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: valierr.ExitGeneral,
	}
}

func encodeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeErrorText prints the message, then any details in key order,
// then the suggestion when one exists.
func writeErrorText(w io.Writer, err error) error {
	var b strings.Builder

	var ve *valierr.ValiError
	if !errors.As(err, &ve) {
		fmt.Fprintf(&b, "Error: %s\n", err.Error())
		_, werr := io.WriteString(w, b.String())
		return werr
	}

	fmt.Fprintf(&b, "Error: %s\n", ve.Message)
	if len(ve.Details) > 0 {
		b.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(ve.Details))
		for k := range ve.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, ve.Details[k])
		}
	}
	if ve.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggestion: %s\n", ve.Suggestion)
	}

	_, werr := io.WriteString(w, b.String())
	return werr
}

// FormatSuccess renders a success message in the given format.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return encodeIndented(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
