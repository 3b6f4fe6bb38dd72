package engine

import (
	"errors"
	"fmt"
)

// ResultKind tags a transcription result.
type ResultKind int

const (
	KindSuccess ResultKind = iota
	KindPartial
	KindError
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPartial:
		return "partial"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

func (k ResultKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ResultKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*k = KindSuccess
	case "partial":
		*k = KindPartial
	case "error":
		*k = KindError
	default:
		return fmt.Errorf("unknown result kind %q", b)
	}
	return nil
}

// Result is an immutable transcription outcome: final text, partial text, or a failure message.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Text    string     `json:"text,omitempty"`
	Message string     `json:"message,omitempty"`
}

func Success(text string) Result { return Result{Kind: KindSuccess, Text: text} }

func Partial(text string) Result { return Result{Kind: KindPartial, Text: text} }

func Failure(msg string) Result { return Result{Kind: KindError, Message: msg} }

func (r Result) OK() bool { return r.Kind != KindError }

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Kind != KindError {
		return nil
	}
	return errors.New(r.Message)
}

func (r Result) String() string {
	if r.Kind == KindError {
		return "error: " + r.Message
	}
	return r.Kind.String() + ": " + r.Text
}
