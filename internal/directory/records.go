package directory

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRecord marks a record that fails structural validation.
var ErrInvalidRecord = errors.New("invalid record")

// Channel is a named chat channel. Members are authoritative only on the
// host; other servers keep a stub with no members.
type Channel struct {
	Name string `json:"name"`
	Host string `json:"host"`
	// Key is the bcrypt hash of the channel key, or "" for none.
	Key     string   `json:"key"`
	Members []string `json:"members"`
}

// HasMember reports whether nickname is a member of c.
func (c Channel) HasMember(nickname string) bool {
	return slices.Contains(c.Members, nickname)
}

// AddMember adds nickname to the members. Returns true if newly added.
func (c *Channel) AddMember(nickname string) bool {
	if c.HasMember(nickname) {
		return false
	}
	c.Members = append(c.Members, nickname)
	return true
}

func (c Channel) key() string { return c.Name }

func (c Channel) validate() error {
	if err := validName("channel name", c.Name); err != nil {
		return err
	}
	if c.Host == "" {
		return fmt.Errorf("%w: channel %q has no host", ErrInvalidRecord, c.Name)
	}
	return nil
}

// User records which server a nickname is attached to.
type User struct {
	Nickname string `json:"nickname"`
	Server   string `json:"server"`
}

func (u User) key() string { return u.Nickname }

func (u User) validate() error {
	if err := validName("nickname", u.Nickname); err != nil {
		return err
	}
	if u.Server == "" {
		return fmt.Errorf("%w: user %q has no server", ErrInvalidRecord, u.Nickname)
	}
	return nil
}

// AwayRegister marks a user as away. Its presence is the away state.
type AwayRegister struct {
	Nickname string `json:"nickname"`
	Message  string `json:"message,omitempty"`
}

func (a AwayRegister) key() string { return a.Nickname }

func (a AwayRegister) validate() error {
	return validName("nickname", a.Nickname)
}

// Message is an append-only channel log entry.
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Channel   string `json:"channel"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func (m Message) key() string { return m.ID }

func (m Message) validate() error {
	if m.ID == "" || m.Author == "" || m.Channel == "" {
		return fmt.Errorf("%w: message is missing id, author or channel", ErrInvalidRecord)
	}
	return nil
}

// ValidChannelName reports whether name can be used as a channel name.
func ValidChannelName(name string) error {
	return validName("channel name", name)
}

func validName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidRecord, what)
	}
	if name == "*" || strings.ContainsAny(name, ": \t\r\n") {
		return fmt.Errorf("%w: %s %q contains a reserved character", ErrInvalidRecord, what, name)
	}
	return nil
}
