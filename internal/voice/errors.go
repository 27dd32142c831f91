package voice

import "errors"

var (
	// ErrJoinTimeout means the voice connection never became ready.
	ErrJoinTimeout = errors.New("voice: connection not ready before timeout")
	// ErrSessionDestroyed is returned by operations on a torn down session.
	ErrSessionDestroyed = errors.New("voice: session destroyed")
	// ErrCaptureFailed wraps decode and write failures while recording.
	ErrCaptureFailed = errors.New("voice: capture failed")
	// ErrNoSession is returned when no voice session is active.
	ErrNoSession = errors.New("voice: no active session")
)
