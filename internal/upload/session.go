// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"sync"

	"github.com/StepanNazar/city-report/internal/imageproc"
)

// Status is the lifecycle state of a Session. Uploading is the only
// non-terminal state.
type Status int

const (
	StatusUploading Status = iota
	StatusCommitted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusUploading:
		return "uploading"
	case StatusCommitted:
		return "committed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Uploader issues a single file upload. Implemented by Client.
type Uploader interface {
	Upload(ctx context.Context, file imageproc.File) (Result, error)
}

// Callbacks are invoked once when a session settles. A cancelled session
// invokes neither.
type Callbacks struct {
	OnCommit func(Result)
	OnFail   func(error)
}

// Session drives the upload of exactly one attachment. Sessions are created
// already running via Start and settle exactly once, whichever of Cancel or
// the in-flight completion takes the lock first.
type Session struct {
	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

// Start begins the upload in a background goroutine and returns the running
// session.
func Start(ctx context.Context, uploader Uploader, file imageproc.File, callbacks Callbacks) *Session {
	ctx, cancel := context.WithCancel(ctx)
	session := &Session{status: StatusUploading, cancel: cancel}
	go session.run(ctx, uploader, file, callbacks)
	return session
}

func (s *Session) run(ctx context.Context, uploader Uploader, file imageproc.File, callbacks Callbacks) {
	defer s.cancel()
	result, err := uploader.Upload(ctx, file)

	s.mu.Lock()
	if s.status != StatusUploading {
		// Cancel settled the session first, the outcome is discarded.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.status = StatusFailed
		s.mu.Unlock()
		if callbacks.OnFail != nil {
			callbacks.OnFail(err)
		}
		return
	}
	s.status = StatusCommitted
	s.mu.Unlock()
	if callbacks.OnCommit != nil {
		callbacks.OnCommit(result)
	}
}

// Cancel aborts the transport and marks the session cancelled. Calling it on
// a settled session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.status != StatusUploading {
		s.mu.Unlock()
		return
	}
	s.status = StatusCancelled
	s.mu.Unlock()
	s.cancel()
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
