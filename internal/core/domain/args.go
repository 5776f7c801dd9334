package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args holds the column/field values the host supplies for one invocation.
type Args map[string]string

func (a Args) String(name string) string {
	return strings.TrimSpace(a[name])
}

// Raw returns the value without trimming (paragraphs, HTML, search input).
func (a Args) Raw(name string) string {
	return a[name]
}

func (a Args) Require(name string) (string, error) {
	v := a.String(name)
	if v == "" {
		return "", &ArgumentError{Param: name, Reason: "is required"}
	}
	return v, nil
}

func (a Args) Int(name string) (int, error) {
	v, err := a.Require(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ArgumentError{Param: name, Reason: "must be an integer"}
	}
	return n, nil
}

// Bool returns def when the argument is absent.
func (a Args) Bool(name string, def bool) (bool, error) {
	v := a.String(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ArgumentError{Param: name, Reason: "must be a boolean"}
	}
	return b, nil
}

// JSON decodes a JSON-encoded argument into out.
func (a Args) JSON(name string, out any) error {
	v, err := a.Require(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return &ArgumentError{Param: name, Reason: "must be valid JSON: " + err.Error()}
	}
	return nil
}

// List splits a comma separated argument, dropping empty items.
func (a Args) List(name string) []string {
	return SplitList(a.String(name), ",")
}

func SplitList(s, sep string) []string {
	var out []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
