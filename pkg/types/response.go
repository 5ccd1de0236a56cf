package types

// SuccessEnvelope wraps every successful JSON response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Money is an integer minor-unit amount paired with its display rendering.
type Money struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}
