package transport

import (
	"encoding/json"
	"net/http"
)

type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// JSON decodes the body, returning nil when it is not valid JSON.
func (r *Response) JSON() any {
	if r == nil || len(r.Body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil
	}
	return v
}

// Object decodes a JSON object body. Non-object or invalid bodies degrade
// to an empty map.
func (r *Response) Object() map[string]any {
	if m, ok := r.JSON().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}
