// Package wire defines the envelope exchanged between lateral peers and the
// length-framed codec used to move it over a stream connection.
package wire

import (
	"github.com/cespare/xxhash/v2"
)

// Command identifies what a Message asks the receiving peer to do.
type Command uint8

// Commands understood by the listener.
const (
	CommandUpdate Command = iota + 1
	CommandRemove
	CommandRemoveAll
	CommandGet
	CommandGetMatching
	CommandGetKeySet
)

func (c Command) String() string {
	switch c {
	case CommandUpdate:
		return "UPDATE"
	case CommandRemove:
		return "REMOVE"
	case CommandRemoveAll:
		return "REMOVE_ALL"
	case CommandGet:
		return "GET"
	case CommandGetMatching:
		return "GET_MATCHING"
	case CommandGetKeySet:
		return "GET_KEYSET"
	}

	return "UNKNOWN"
}

// IsRead reports whether the command expects a response on the same connection.
func (c Command) IsRead() bool {
	return c == CommandGet || c == CommandGetMatching || c == CommandGetKeySet
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool { return c >= CommandUpdate && c <= CommandGetKeySet }

// Message is the command envelope. The command decides which fields are meaningful:
//
//	UPDATE       Region, Key, Value
//	REMOVE       Region, Key, optionally ContentHash
//	REMOVE_ALL   Region
//	GET          Region, Key
//	GET_MATCHING Region, Key (a regular expression)
//	GET_KEYSET   Region
//
// A Message is treated as immutable once built.
type Message struct {
	Command     Command `codec:"c"`
	Region      string  `codec:"r"`
	Key         string  `codec:"k,omitempty"`
	Value       []byte  `codec:"v,omitempty"`
	SenderID    int64   `codec:"s"`
	ContentHash int32   `codec:"h,omitempty"`
	HasHash     bool    `codec:"hh,omitempty"`
}

// NewUpdate builds an UPDATE carrying the full value.
func NewUpdate(region, key string, value []byte, sender int64) *Message {
	return &Message{Command: CommandUpdate, Region: region, Key: key, Value: value, SenderID: sender}
}

// NewRemove builds a plain REMOVE.
func NewRemove(region, key string, sender int64) *Message {
	return &Message{Command: CommandRemove, Region: region, Key: key, SenderID: sender}
}

// NewHashedRemove builds a REMOVE carrying the content hash of value, so the receiver may keep an
// equivalent local copy instead of evicting it.
func NewHashedRemove(region, key string, value []byte, sender int64) *Message {
	return &Message{
		Command:     CommandRemove,
		Region:      region,
		Key:         key,
		SenderID:    sender,
		ContentHash: ContentHash(value),
		HasHash:     true,
	}
}

// NewRemoveAll builds a REMOVE_ALL for the region.
func NewRemoveAll(region string, sender int64) *Message {
	return &Message{Command: CommandRemoveAll, Region: region, SenderID: sender}
}

// NewGet builds a GET for a single key.
func NewGet(region, key string, sender int64) *Message {
	return &Message{Command: CommandGet, Region: region, Key: key, SenderID: sender}
}

// NewGetMatching builds a GET_MATCHING; pattern is a regular expression applied to keys.
func NewGetMatching(region, pattern string, sender int64) *Message {
	return &Message{Command: CommandGetMatching, Region: region, Key: pattern, SenderID: sender}
}

// NewGetKeySet builds a GET_KEYSET for the region.
func NewGetKeySet(region string, sender int64) *Message {
	return &Message{Command: CommandGetKeySet, Region: region, SenderID: sender}
}

// Hash returns the content hash carried by the message, if any.
func (m *Message) Hash() (int32, bool) { return m.ContentHash, m.HasHash }

// ContentHash returns the 32 bit content hash of a serialized value.
// Distinct values may collide; the hash is only used as a remove filter heuristic.
func ContentHash(value []byte) int32 {
	return int32(xxhash.Sum64(value)) //nolint:gosec
}

// Response is written back for read commands. Exactly one field group is set,
// depending on the command: Found/Value for GET, Entries for GET_MATCHING, Keys for GET_KEYSET.
type Response struct {
	Found   bool              `codec:"f"`
	Value   []byte            `codec:"v,omitempty"`
	Entries map[string][]byte `codec:"e,omitempty"`
	Keys    []string          `codec:"ks,omitempty"`
}
