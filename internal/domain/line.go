package domain

import (
	"time"

	"github.com/lrstanley/girc"
)

// LineCommand is one IRC line headed for the client: an optional sender
// prefix, a command and its parameters.
type LineCommand struct {
	Prefix   string    `json:"prefix,omitempty"`
	Command  string    `json:"command"`
	Params   []string  `json:"params,omitempty"`
	Time     time.Time `json:"time"`
	Playback bool      `json:"playback,omitempty"`
}

// serverTimeFormat is the IRCv3 server-time tag layout.
const serverTimeFormat = "2006-01-02T15:04:05.000Z"

// Event converts the command into a girc event ready for serialization.
// Played-back lines carry their original time as a server-time tag so
// clients do not mistake them for live traffic.
func (c LineCommand) Event() *girc.Event {
	e := &girc.Event{
		Command:   c.Command,
		Params:    append([]string(nil), c.Params...),
		Timestamp: c.Time,
	}
	if c.Prefix != "" {
		e.Source = girc.ParseSource(c.Prefix)
	}
	if c.Playback && !c.Time.IsZero() {
		e.Tags = girc.Tags{"time": c.Time.UTC().Format(serverTimeFormat)}
	}
	return e
}

// Bytes renders the command as a single IRC line without the trailing CRLF.
func (c LineCommand) Bytes() []byte {
	return c.Event().Bytes()
}
