package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type ParamType string

const (
	Text     ParamType = "text"
	Password ParamType = "password"
	Select   ParamType = "select"
	Int      ParamType = "int"
	Bool     ParamType = "bool"
	JSON     ParamType = "json"
)

// Param describes one host-supplied argument of an action.
type Param struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        ParamType `json:"type"`
	Optional    bool      `json:"optional,omitempty"`
	Default     string    `json:"default,omitempty"`
	Options     []string  `json:"options,omitempty"`
}

// Handler runs an action with already bound arguments. The returned value
// must be JSON serialisable: a Result, a []any of results, or a plain value.
type Handler func(ctx context.Context, args Args) (any, error)

// Action is a single named operation exposed to the host workflow engine.
type Action struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Params      []Param `json:"params,omitempty"`
	Run         Handler `json:"-"`
}

// Bind applies defaults and validates the declared params against args.
// Arguments not declared by the action are passed through untouched.
func (a Action) Bind(args Args) (Args, error) {
	bound := make(Args, len(args)+len(a.Params))
	for k, v := range args {
		bound[k] = v
	}

	for _, p := range a.Params {
		value := strings.TrimSpace(bound[p.Name])
		if value == "" && p.Default != "" {
			value = p.Default
			bound[p.Name] = value
		}
		if value == "" {
			if !p.Optional {
				return nil, &ArgumentError{Param: p.Name, Reason: "is required"}
			}
			continue
		}

		switch p.Type {
		case Select:
			if len(p.Options) > 0 && !slices.Contains(p.Options, value) {
				return nil, &ArgumentError{
					Param:  p.Name,
					Reason: fmt.Sprintf("must be one of %s", strings.Join(p.Options, ", ")),
				}
			}
		case Int:
			if _, err := strconv.Atoi(value); err != nil {
				return nil, &ArgumentError{Param: p.Name, Reason: "must be an integer"}
			}
		case Bool:
			if _, err := strconv.ParseBool(value); err != nil {
				return nil, &ArgumentError{Param: p.Name, Reason: "must be a boolean"}
			}
		case JSON:
			if !json.Valid([]byte(value)) {
				return nil, &ArgumentError{Param: p.Name, Reason: "must be valid JSON"}
			}
		}
	}

	return bound, nil
}

// ArgumentError reports a bad host-supplied argument.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q %s", e.Param, e.Reason)
}

// BadArgument is a shortcut for actions validating their own input.
func BadArgument(param, format string, args ...any) error {
	return &ArgumentError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
