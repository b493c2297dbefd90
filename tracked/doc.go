// Package tracked defines the envelope a producer uses to attach a
// resumption id to a value.
//
// An envelope with an id is a checkpoint: a consumer that reconnects after
// seeing it asks the producer to resume strictly after that id. An envelope
// without an id is delivered like any other value but cannot be resumed from,
// so if the connection drops before a later tracked envelope arrives, the
// untracked values in between are lost on reconnect.
//
// Ids must be unique within a logical stream and are expected to increase.
// An empty ID means "no id"; the event-stream protocol treats an empty id
// line as a reset, so it is never a meaningful checkpoint.
package tracked
