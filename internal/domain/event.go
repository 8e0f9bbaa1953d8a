package domain

import "time"

// EventType identifies one of the closed set of state-changing facts the
// reconciliation engine understands, regardless of whether the fact came
// from a server push or from a confirmed local action.
type EventType string

const (
	EventMessageArrived   EventType = "MESSAGE_ARRIVED"
	EventReactionChanged  EventType = "REACTION_CHANGED"
	EventReplyAdded       EventType = "REPLY_ADDED"
	EventReadStateChanged EventType = "READ_STATE_CHANGED"
	EventMessageDeleted   EventType = "MESSAGE_DELETED"
)

// Event is a normalized reconciliation event. Exactly one payload field is
// meaningful per Type; the push channel and the gateway call sites construct
// events only through the helpers below so malformed variants cannot enter
// the engine.
type Event struct {
	Type           EventType
	MessageID      string
	Message        *Message  // EventMessageArrived
	Reactions      Reactions // EventReactionChanged
	Reply          string    // EventReplyAdded
	ReplyTimestamp time.Time // EventReplyAdded
}

func MessageArrived(m *Message) Event {
	return Event{Type: EventMessageArrived, MessageID: m.ID, Message: m}
}

func ReactionChanged(messageID string, counts Reactions) Event {
	return Event{Type: EventReactionChanged, MessageID: messageID, Reactions: counts}
}

func ReplyAdded(messageID, reply string, ts time.Time) Event {
	return Event{Type: EventReplyAdded, MessageID: messageID, Reply: reply, ReplyTimestamp: ts}
}

func ReadStateChanged(messageID string) Event {
	return Event{Type: EventReadStateChanged, MessageID: messageID}
}

func MessageDeleted(messageID string) Event {
	return Event{Type: EventMessageDeleted, MessageID: messageID}
}
