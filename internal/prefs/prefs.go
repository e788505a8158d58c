// Package prefs reads and writes persistent OS settings.
//
// A Store addresses a setting by domain and key. Writes are last-write-wins:
// every key is independent, so re-setting a value is always safe.
package prefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Value types understood by the stores. They mirror the `defaults write` type flags.
const (
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "string"
)

// Value is a typed setting value.
type Value struct {
	Type string
	Data string
}

// Validate checks that Data parses as Type.
func (v Value) Validate() error {
	switch v.Type {
	case TypeBool:
		if _, ok := parseBool(v.Data); !ok {
			return fmt.Errorf("%q is not a bool", v.Data)
		}
	case TypeInt:
		if _, err := strconv.ParseInt(v.Data, 10, 64); err != nil {
			return fmt.Errorf("%q is not an int", v.Data)
		}
	case TypeFloat:
		if _, err := strconv.ParseFloat(v.Data, 64); err != nil {
			return fmt.Errorf("%q is not a float", v.Data)
		}
	case TypeString, "":
	default:
		return fmt.Errorf("unknown value type %q", v.Type)
	}
	return nil
}

// Matches reports whether current, as read back from a store, already equals v.
// `defaults read` prints booleans as 1/0, so booleans and numbers are compared by value.
func (v Value) Matches(current string) bool {
	current = strings.TrimSpace(current)
	switch v.Type {
	case TypeBool:
		want, ok1 := parseBool(v.Data)
		got, ok2 := parseBool(current)
		return ok1 && ok2 && want == got
	case TypeInt:
		want, err1 := strconv.ParseInt(v.Data, 10, 64)
		got, err2 := strconv.ParseInt(current, 10, 64)
		return err1 == nil && err2 == nil && want == got
	case TypeFloat:
		want, err1 := strconv.ParseFloat(v.Data, 64)
		got, err2 := strconv.ParseFloat(current, 64)
		return err1 == nil && err2 == nil && want == got
	default:
		return v.Data == current
	}
}

func (v Value) String() string {
	return v.Data
}

// Store reads and writes settings.
type Store interface {
	// Get returns the current value and whether the key exists.
	Get(ctx context.Context, domain, key string) (string, bool, error)
	// Set writes the value.
	Set(ctx context.Context, domain, key string, v Value) error
}

func parseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}
