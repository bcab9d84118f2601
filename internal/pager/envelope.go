package pager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxStringLayers bounds how many times a JSON string is unwrapped into the
// document it encodes.
const maxStringLayers = 2

// FetchError carries the error messages the server reported for a query.
type FetchError struct {
	Messages []string
}

func (e *FetchError) Error() string {
	if len(e.Messages) == 0 {
		return "request failed"
	}
	return strings.Join(e.Messages, "; ")
}

// DecodeError reports a response body that could not be decoded into the
// expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errNoData = errors.New("response has no data")

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// UnwrapEnvelope extracts the data member of a {data, errors} response.
// Either the whole body or its data member may arrive JSON-encoded as a
// string, once or twice; such layers are decoded. Structured data is
// returned unchanged. A non-empty error list yields a *FetchError.
func UnwrapEnvelope(body []byte) (json.RawMessage, error) {
	doc, err := unwrapStrings(body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(doc, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &FetchError{Messages: msgs}
	}

	data, err := unwrapStrings(env.Data)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, &DecodeError{Err: errNoData}
	}
	return data, nil
}

func unwrapStrings(raw []byte) (json.RawMessage, error) {
	doc := bytes.TrimSpace(raw)
	for i := 0; i < maxStringLayers; i++ {
		if len(doc) == 0 || doc[0] != '"' {
			break
		}
		var s string
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, &DecodeError{Err: err}
		}
		doc = bytes.TrimSpace([]byte(s))
	}
	if len(doc) > 0 && !json.Valid(doc) {
		return nil, &DecodeError{Err: errors.New("invalid JSON document")}
	}
	return json.RawMessage(doc), nil
}

// DecodeAt decodes the value found by following path through nested
// objects in data, e.g. DecodeAt(data, &page, "projects", "get").
func DecodeAt(data json.RawMessage, v any, path ...string) error {
	cur := data
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return &DecodeError{Err: fmt.Errorf("at %q: %w", key, err)}
		}
		next, ok := obj[key]
		if !ok || bytes.Equal(bytes.TrimSpace(next), []byte("null")) {
			return &DecodeError{Err: fmt.Errorf("missing %q", key)}
		}
		cur = next
	}
	if err := json.Unmarshal(cur, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
