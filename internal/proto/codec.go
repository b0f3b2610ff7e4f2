package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	wirePrefix = "command:"
	separator  = ":"
	// minSegments counts author, recipient, identifier, parameters and
	// timestamp after the prefix.
	minSegments = 5
)

// ErrDecode is wrapped by every error returned from Decode.
var ErrDecode = errors.New("decode command")

// ErrEncode is wrapped by every error returned from Encode.
var ErrEncode = errors.New("encode command")

// DecodeError describes a malformed wire command.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode command: %s: %v", e.Reason, e.Err)
	}
	return "decode command: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

var lastStamp atomic.Int64

// stamp returns the current UNIX time, never smaller than a previously
// returned value even if the wall clock steps backwards.
func stamp() int64 {
	now := time.Now().Unix()
	for {
		prev := lastStamp.Load()
		if now <= prev {
			return prev
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Validate checks that c can be represented on the wire.
func (c Command) Validate() error {
	fields := []struct{ name, value string }{
		{"author", c.Author},
		{"recipient", c.Recipient},
		{"identifier", c.Identifier},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: empty %s", ErrEncode, f.name)
		}
		if strings.ContainsAny(f.value, ":\r\n") {
			return fmt.Errorf("%w: %s %q contains a reserved character", ErrEncode, f.name, f.value)
		}
	}
	return nil
}

// Encode renders c as `command:<author>:<recipient>:<identifier>:<json>:<timestamp>`.
// The timestamp is taken at encode time; c.Timestamp is ignored.
func Encode(c Command) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	params := c.Parameters
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: parameters: %v", ErrEncode, err)
	}

	var buf bytes.Buffer
	buf.WriteString(wirePrefix)
	buf.WriteString(c.Author)
	buf.WriteString(separator)
	buf.WriteString(c.Recipient)
	buf.WriteString(separator)
	buf.WriteString(c.Identifier)
	buf.WriteString(separator)
	buf.Write(data)
	buf.WriteString(separator)
	buf.WriteString(strconv.FormatInt(stamp(), 10))
	return buf.Bytes(), nil
}

// Decode parses a wire command. Parameters are parsed strictly as a JSON
// object of strings; any other shape is rejected.
func Decode(raw []byte) (Command, error) {
	return DecodeString(string(raw))
}

// DecodeString is Decode for string input.
func DecodeString(raw string) (Command, error) {
	raw = strings.TrimRight(raw, "\r\n")
	rest, ok := strings.CutPrefix(raw, wirePrefix)
	if !ok {
		return Command{}, &DecodeError{Reason: "missing command prefix"}
	}

	segments := strings.Split(rest, separator)
	if len(segments) < minSegments {
		return Command{}, &DecodeError{Reason: fmt.Sprintf("got %d segments, want at least %d", len(segments), minSegments)}
	}

	last := len(segments) - 1
	// A parameter value may contain colons, so everything between the
	// identifier and the timestamp belongs to the JSON object.
	rawParams := strings.Join(segments[3:last], separator)

	var params map[string]string
	if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
		return Command{}, &DecodeError{Reason: "parameters", Err: err}
	}
	if params == nil {
		return Command{}, &DecodeError{Reason: "parameters are not an object"}
	}

	ts, err := strconv.ParseInt(segments[last], 10, 64)
	if err != nil {
		return Command{}, &DecodeError{Reason: "timestamp", Err: err}
	}

	cmd := Command{
		Author:     segments[0],
		Recipient:  segments[1],
		Identifier: segments[2],
		Parameters: params,
		Timestamp:  ts,
	}
	if cmd.Author == "" || cmd.Recipient == "" || cmd.Identifier == "" {
		return Command{}, &DecodeError{Reason: "empty author, recipient or identifier"}
	}
	return cmd, nil
}

// EncodeBatch renders commands one per line. Commands that cannot be
// encoded are skipped and reported in the returned error.
func EncodeBatch(cmds []Command) ([]byte, error) {
	var (
		buf  bytes.Buffer
		errs []error
	)
	for _, c := range cmds {
		data, err := Encode(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), errors.Join(errs...)
}

// DecodeBatch parses newline separated commands. Blank lines are ignored,
// malformed lines are skipped and reported in the returned error.
func DecodeBatch(data []byte) ([]Command, error) {
	var (
		cmds []Command
		errs []error
	)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		cmd, err := Decode(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, errors.Join(errs...)
}
