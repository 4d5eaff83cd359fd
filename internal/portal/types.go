package portal

import (
	"encoding/json"
	"strings"
)

// ContextEntry is one key/value pair in a GetNextSteps request context.
type ContextEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NextStepsRequest is the body of a GetNextSteps call. The portal models
// bill lookup as a numbered wizard; stepOrder names the step being fetched
// or submitted.
type NextStepsRequest struct {
	Context        []ContextEntry `json:"context"`
	RecaptchaToken string         `json:"recaptchaToken"`
	ServiceID      int64          `json:"serviceId"`
	StepOrder      int            `json:"stepOrder"`
	Origin         string         `json:"origin"`
}

// FlexString tolerates the portal's habit of sending numbers and booleans
// where strings are expected. Non-string scalars keep their literal text.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(data)
	return nil
}

// StepParameter is one key/value datum the portal attaches to a step.
type StepParameter struct {
	Key   string     `json:"key"`
	Value FlexString `json:"value"`
}

// Step is one wizard step with its parameters.
type Step struct {
	StepOrder      int             `json:"stepOrder"`
	Name           string          `json:"name,omitempty"`
	StepParameters []StepParameter `json:"stepParameters"`
}

// NextStepsData carries the portal's step payload. The portal answers with
// a single step on submission and has been seen using both the singular
// and plural shapes on metadata fetches, so both are modeled.
type NextStepsData struct {
	Step  *Step  `json:"step,omitempty"`
	Steps []Step `json:"steps,omitempty"`
}

// SelectStep returns the step with the given order, checking the plural
// shape first and falling back to the singular one. A singular step with
// stepOrder 0 (portal omitted the field) matches any requested order.
func (d *NextStepsData) SelectStep(order int) (*Step, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Steps {
		if d.Steps[i].StepOrder == order {
			return &d.Steps[i], true
		}
	}
	if d.Step != nil && (d.Step.StepOrder == order || d.Step.StepOrder == 0) {
		return d.Step, true
	}
	return nil, false
}

// PortalError is one entry in the portal's errors array.
type PortalError struct {
	Message string `json:"message"`
}

// NextStepsResponse is the portal's GetNextSteps envelope.
type NextStepsResponse struct {
	Success bool           `json:"success"`
	Data    *NextStepsData `json:"data"`
	Errors  []PortalError  `json:"errors,omitempty"`
}

// ErrorText joins the portal's error messages with "; ". Returns
// "Unknown error" when the portal rejected the call without saying why.
func (r *NextStepsResponse) ErrorText() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return "Unknown error"
	}
	return strings.Join(msgs, "; ")
}

// ParamMap flattens step parameters into a key-to-value map.
func ParamMap(params []StepParameter) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.Key] = string(p.Value)
	}
	return m
}

// LooksLikeTokenRejection reports whether a portal error message blames
// the reCAPTCHA token. Used to decide the one forced token refresh.
func LooksLikeTokenRejection(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "captcha") || strings.Contains(lower, "token")
}
