package ytaccess

import (
	"errors"

	ythttp "ytaccess/http"
	"ytaccess/internal/retry"
	"ytaccess/internal/storage"
	"ytaccess/quota"
	"ytaccess/youtube"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytaccess.ErrNotFound) {
//		fmt.Println("No such channel")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var chainErr *ytaccess.ChainError
//	if errors.As(err, &chainErr) {
//		fmt.Printf("%s failed on every tier: %v\n", chainErr.Op, chainErr.Err)
//	}

// Exported error types from sub-packages:
//
// From youtube package:
//   - youtube.ErrNotFound: the entity does not exist on any tier
//   - youtube.ErrInvalidURL: a URL or id could not be parsed
//   - youtube.ErrQuotaExhausted: no API key can pay for the call
//   - youtube.ErrRateLimited: the Data API kept rate limiting
//   - youtube.ErrTransient: the Data API kept failing at the network level
//   - youtube.TierError: one tier's failure inside an operation
//
// From http package:
//   - http.ErrCircuitOpen: the operation's circuit is open
//   - http.RateLimitError: a page fetch was rate limited
//   - http.HTTPError: a page fetch got an error status
//
// From storage package:
//   - storage.StorageError: a ledger snapshot could not be read or written

// Type aliases for convenient error handling.
type (
	// TierError wraps the failure of one tier.
	TierError = youtube.TierError
	// RateLimitError is a rate limited page fetch.
	RateLimitError = ythttp.RateLimitError
	// HTTPError is a page fetch with an error status.
	HTTPError = ythttp.HTTPError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// StorageError wraps errors during snapshot storage.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrNotFound indicates the entity does not exist.
	ErrNotFound = youtube.ErrNotFound
	// ErrInvalidURL indicates the provided URL or id is invalid.
	ErrInvalidURL = youtube.ErrInvalidURL
	// ErrQuotaExhausted indicates every API key is spent.
	ErrQuotaExhausted = youtube.ErrQuotaExhausted
	// ErrRateLimited indicates the Data API kept rate limiting.
	ErrRateLimited = youtube.ErrRateLimited
	// ErrTransient indicates a network failure outlasted the retries.
	ErrTransient = youtube.ErrTransient
	// ErrCircuitOpen indicates the operation's circuit rejected the call.
	ErrCircuitOpen = ythttp.ErrCircuitOpen
	// ErrNoKeys indicates the quota ledger has no keys.
	ErrNoKeys = quota.ErrNoKeys
)

// ErrInvalidArgument indicates a required argument was empty.
var ErrInvalidArgument = errors.New("ytaccess: invalid argument")

// IsPermanent reports whether retrying the same call cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidArgument)
}
