package rest

import "errors"

// ErrUnauthorized is returned for any 401 from the pull channel. It is a
// uniform signal that the credential is invalid or expired; the caller must
// force a logout.
var ErrUnauthorized = errors.New("credential rejected by server")

// NetworkError wraps a transient transport failure: the request itself was
// rejected or timed out. It is surfaced as a non-blocking notice and never
// reaches the message store.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err (or any error in its chain) is a
// NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// UploadError wraps a rejected media upload. The send is aborted and the
// local draft preserved so the user can retry.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "upload failed: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }
