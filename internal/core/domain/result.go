package domain

import "fmt"

// Result is the plain mapping handed back to the host platform.
type Result map[string]any

// ErrorResult is the soft-failure convention understood by the host:
// the action completes, but the row is flagged as failed.
func ErrorResult(msg any) Result {
	return Result{"has_error": "true", "error_msg": msg}
}

// FileResult is returned by actions that produce or mutate a document, so
// the next action in a chain can refer to it by name.
func FileResult(name string) Result {
	return Result{"has_error": "false", "file_name": name}
}

// IsSoftError reports whether v is a result flagged with has_error.
func IsSoftError(v any) bool {
	var m map[string]any
	switch r := v.(type) {
	case Result:
		m = r
	case map[string]any:
		m = r
	default:
		return false
	}
	switch flag := m["has_error"].(type) {
	case bool:
		return flag
	case string:
		return flag == "true"
	default:
		return false
	}
}

// VendorErrors wraps an "errors" array a vendor returned inside a 2xx body.
func VendorErrors(errs any) Result {
	if errs == nil {
		return ErrorResult("unknown vendor error")
	}
	return ErrorResult(errs)
}

// ReportedErrors returns the non-empty "errors" member some vendors embed in
// an otherwise successful body.
func ReportedErrors(body map[string]any) (any, bool) {
	errs, ok := body["errors"]
	if !ok || errs == nil {
		return nil, false
	}
	switch v := errs.(type) {
	case []any:
		return v, len(v) > 0
	case map[string]any:
		return v, len(v) > 0
	case string:
		return v, v != ""
	case bool:
		return v, v
	default:
		return v, true
	}
}

// Envelope shapes a decoded vendor body: reported errors become a soft
// error, a body carrying key is returned whole, anything else is empty.
func Envelope(body map[string]any, key string) Result {
	if errs, ok := ReportedErrors(body); ok {
		return VendorErrors(errs)
	}
	if _, ok := body[key]; ok {
		return Result(body)
	}
	return Result{}
}

// ReportedError is raised by actions that treat errors embedded in a
// successful vendor body as failures.
type ReportedError struct {
	Vendor string
	Errors any
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("%s reported errors: %v", e.Vendor, e.Errors)
}
