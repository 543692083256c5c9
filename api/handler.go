// File: api/handler.go
// Package api defines the server option enumeration and callbacks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ErrorFunc receives diagnostics: an error code and a human-readable description.
type ErrorFunc func(code ErrorCode, description string)

// OptionName enumerates the server options.
type OptionName int

const (
	OptionBindAddr  OptionName = 1
	OptionBacklog   OptionName = 2
	OptionErrorFunc OptionName = 3
)

func (n OptionName) String() string {
	switch n {
	case OptionBindAddr:
		return "bind_addr"
	case OptionBacklog:
		return "backlog"
	case OptionErrorFunc:
		return "error_func"
	default:
		return "unknown"
	}
}

// OptionValue is the tagged union carried by SetOption/GetOption.
// Its dynamic type must match the option name it is used with.
type OptionValue interface {
	Option() OptionName
}

// BindAddr is the value of OptionBindAddr.
type BindAddr Address

// Backlog is the value of OptionBacklog. Zero selects the default.
type Backlog int

// ErrorCallback is the value of OptionErrorFunc. Nil selects the default.
type ErrorCallback ErrorFunc

func (BindAddr) Option() OptionName      { return OptionBindAddr }
func (Backlog) Option() OptionName       { return OptionBacklog }
func (ErrorCallback) Option() OptionName { return OptionErrorFunc }
