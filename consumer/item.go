package consumer

import (
	"github.com/kbukum/eventstream/errors"
)

// ItemKind discriminates the variants of Item.
type ItemKind int

const (
	// ItemConnecting is emitted before every connection attempt.
	ItemConnecting ItemKind = iota + 1
	// ItemData carries one decoded value.
	ItemData
	// ItemSerializedError carries an error framed by the producer.
	ItemSerializedError
	// ItemMalformed carries a frame whose payload could not be decoded.
	// Reception continues after it.
	ItemMalformed
)

func (k ItemKind) String() string {
	switch k {
	case ItemConnecting:
		return "connecting"
	case ItemData:
		return "data"
	case ItemSerializedError:
		return "serialized-error"
	case ItemMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ConnectingEvent describes a connection attempt.
type ConnectingEvent struct {
	// Attempt counts every attempt made by the subscription, starting at 1.
	Attempt int
	// Consecutive counts attempts since the last connected frame, starting at 1.
	Consecutive int
	// LastEventID is the resumption id sent with this attempt.
	LastEventID string
	// URL is the address being connected to.
	URL string
	// Cause is why the previous connection ended. Nil on the first attempt.
	Cause error
}

// Item is one output of a Subscription. Exactly the fields of its Kind are set.
type Item[T any] struct {
	Kind ItemKind

	// Connecting is set for ItemConnecting.
	Connecting *ConnectingEvent

	// Data is set for ItemData.
	Data T
	// ID is the frame's resumption id, if any. Set for every frame-backed kind.
	ID string
	// Source is the connection the frame arrived on.
	Source EventSource

	// Err is set for ItemSerializedError and ItemMalformed.
	Err *errors.AppError
	// Raw is the undecoded payload of an ItemMalformed.
	Raw string
}

// State is the connection state of a Subscription.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
