package recovery

import "errors"

var (
	// ErrUnknownMessage is returned by RetryStore.Fail for an id that is not waiting.
	ErrUnknownMessage = errors.New("recovery: unknown message")

	// ErrStoreStopped is returned by RetryStore.Add when the store is not running.
	ErrStoreStopped = errors.New("recovery: retry store stopped")

	// ErrRetryAbandoned is the failure cause passed to the sink for messages
	// that were forced out of the retry store before exhausting their attempts.
	ErrRetryAbandoned = errors.New("recovery: retry abandoned")
)
