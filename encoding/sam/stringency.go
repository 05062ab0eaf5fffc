package sam

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Stringency controls how validation failures found while parsing text are
// handled.
type Stringency int

const (
	// Strict makes every validation failure a fatal error.
	Strict Stringency = iota
	// Lenient logs validation failures and keeps the parsed values.
	Lenient
	// Silent ignores validation failures.
	Silent
)

func (s Stringency) String() string {
	switch s {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	case Silent:
		return "silent"
	}
	return fmt.Sprintf("Stringency(%d)", int(s))
}

// ParseStringency parses "strict", "lenient" or "silent".
func ParseStringency(name string) (Stringency, error) {
	switch name {
	case "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	case "silent":
		return Silent, nil
	}
	return Strict, errors.E(errors.Invalid, fmt.Sprintf("sam: unknown stringency %q", name))
}

// Report handles one validation failure: it returns err when s is Strict,
// logs it when s is Lenient, and drops it otherwise.
func (s Stringency) Report(err error) error {
	switch s {
	case Strict:
		return err
	case Lenient:
		log.Error.Printf("%v", err)
	}
	return nil
}

// invalidf reports a validation failure built from format and args.
func (s Stringency) invalidf(format string, args ...interface{}) error {
	return s.Report(errors.E(errors.Invalid, fmt.Sprintf(format, args...)))
}
