package config

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flag is a boolean that is true only for the text "true", in any case.
// Anything else, including malformed input, is false.
type Flag bool

func parseFlag(s string) Flag {
	return Flag(strings.EqualFold(strings.TrimSpace(s), "true"))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flag) UnmarshalText(text []byte) error {
	*f = parseFlag(string(text))

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	*f = parseFlag(node.Value)

	return nil
}

// Retries is a retry count. Values that aren't a non-negative integer read
// as 0.
type Retries int

func parseRetries(s string) Retries {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}

	return Retries(n)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Retries) UnmarshalText(text []byte) error {
	*r = parseRetries(string(text))

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Retries) UnmarshalYAML(node *yaml.Node) error {
	*r = parseRetries(node.Value)

	return nil
}
