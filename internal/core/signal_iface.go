package core

// Sender is the outbound half of the signaling channel.
// Implementations must not block: a full or closed queue returns an error
// and the frame is dropped.
type Sender interface {
	TrySend(v any) error
}
