package port

import (
	"context"
)

// FetchResult is the outcome of a network fetch that produced a response
type FetchResult struct {
	OK            bool
	StatusCode    int
	Data          []byte
	ContentLength int64 // -1 when the server did not announce one
}

// Fetcher retrieves asset bytes over the network. Transport failures are
// returned as errors; non-ok responses are returned with OK false.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Connectivity reports online state and notifies on transitions
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for transitions and returns a function that
	// removes it
	Subscribe(fn func(online bool)) (unsubscribe func())
}
