// Package ocr talks to the receipt-reading model. Every call resolves to a
// Result; transport and provider failures are reported through ErrorKind,
// never returned as errors or panics.
package ocr

// ErrorKind classifies why an analysis produced no text.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindTransport
	KindStatus
	KindDecode
	KindCircuitOpen
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindCircuitOpen:
		return "circuit_open"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Image is one receipt photo.
type Image struct {
	MIMEType string
	Data     []byte
}

// Result is the outcome of Analyze. Text is empty whenever Err is not
// KindNone.
type Result struct {
	Text   string    `json:"text,omitempty"`
	Model  string    `json:"model"`
	Err    ErrorKind `json:"error"`
	Detail string    `json:"detail,omitempty"`
	Cached bool      `json:"cached,omitempty"`
}

// OK reports whether the call produced text.
func (r Result) OK() bool {
	return r.Err == KindNone
}

func failed(model string, kind ErrorKind, detail string) Result {
	return Result{Model: model, Err: kind, Detail: detail}
}
