// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// Event kinds published to the poem.events queue.
const (
	KindPoemLiked     = "poem.liked"
	KindLikeThrottled = "like.throttled"
)

// PoemEvent is published when a like lands or is throttled. It carries enough
// information for downstream consumers to log or feed analytics without
// querying the primary database.
type PoemEvent struct {
	Kind       string `json:"kind"`
	PoemID     uint64 `json:"poem_id"`
	Likes      uint64 `json:"likes,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
