package widget

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UploadFailedMessage is what the session reports when any file fails.
// Endpoint detail is kept on the file's state instead.
const UploadFailedMessage = "Failed to upload files. Please try again."

// ErrNotRetryable is returned by Retry for files that are not in the
// failed state.
var ErrNotRetryable = errors.New("file is not retryable")

// FileStatus is the lifecycle position of one dispatched file.
type FileStatus int

const (
	StatusPending FileStatus = iota
	StatusSucceeded
	StatusFailed
)

func (s FileStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FileState is a snapshot of one file's outcome.
type FileState struct {
	ID     string
	Name   string
	Status FileStatus
	Result Result // set when Status is StatusSucceeded
	Err    error  // set when Status is StatusFailed
}

type entry struct {
	file   File
	state  FileState
	cancel context.CancelFunc
}

// Session holds the widget state for one user: the per-file map, the
// ordered list of stored results and the session flags. All methods are
// safe for concurrent use.
type Session struct {
	uploader Uploader
	filter   Filter
	onSettle func(FileState)

	mu        sync.Mutex
	base      context.Context
	cancelAll context.CancelFunc
	files     map[string]*entry
	order     []string
	results   []Result
	inFlight  int
	lastError string
	rejected  []Rejection
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFilter replaces DefaultFilter.
func WithFilter(f Filter) SessionOption {
	return func(s *Session) { s.filter = f }
}

// OnSettle registers fn to be called, outside the session lock, each time
// a file succeeds or fails.
func OnSettle(fn func(FileState)) SessionOption {
	return func(s *Session) { s.onSettle = fn }
}

// NewSession returns an empty session dispatching through u.
func NewSession(u Uploader, opts ...SessionOption) *Session {
	s := &Session{
		uploader: u,
		filter:   DefaultFilter(),
		files:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.cancelAll = context.WithCancel(context.Background())
	return s
}

// Batch tracks the files dispatched by one Drop or Retry.
type Batch struct {
	// IDs of the dispatched files, in input order.
	IDs []string
	// Rejected are the files the filter excluded.
	Rejected []Rejection

	wg   sync.WaitGroup
	done chan struct{}
}

func newBatch() *Batch {
	return &Batch{done: make(chan struct{})}
}

func (b *Batch) seal() {
	go func() {
		b.wg.Wait()
		close(b.done)
	}()
}

// Wait blocks until every file in the batch has settled.
func (b *Batch) Wait() {
	<-b.done
}

// Done is closed once every file in the batch has settled.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Drop filters files and dispatches every accepted one concurrently, one
// upload call each. It clears the last error before dispatching. ctx
// bounds every upload in the batch; Cancel aborts them too.
func (s *Session) Drop(ctx context.Context, files []File) *Batch {
	accepted, rejected := s.filter.Apply(files)

	b := newBatch()
	b.Rejected = rejected

	s.mu.Lock()
	s.lastError = ""
	s.rejected = rejected
	for _, f := range accepted {
		id := uuid.NewString()
		e := &entry{
			file:  f,
			state: FileState{ID: id, Name: f.Name, Status: StatusPending},
		}
		s.files[id] = e
		s.order = append(s.order, id)
		b.IDs = append(b.IDs, id)
		s.startLocked(ctx, e, b)
	}
	s.mu.Unlock()

	b.seal()
	return b
}

// Retry makes one fresh attempt for a failed file.
func (s *Session) Retry(ctx context.Context, id string) (*Batch, error) {
	s.mu.Lock()
	e, ok := s.files[id]
	if !ok || e.state.Status != StatusFailed {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrNotRetryable, "file %s", id)
	}

	b := newBatch()
	b.IDs = []string{id}
	e.state.Status = StatusPending
	e.state.Err = nil
	s.startLocked(ctx, e, b)
	s.mu.Unlock()

	b.seal()
	return b, nil
}

// startLocked marks e in flight and launches its upload. s.mu must be held.
func (s *Session) startLocked(ctx context.Context, e *entry, b *Batch) {
	fctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.base, cancel)
	e.cancel = cancel
	s.inFlight++
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer stop()
		defer cancel()

		res, err := s.uploader.Upload(fctx, e.file)
		s.settle(e, res, err)
	}()
}

func (s *Session) settle(e *entry, res Result, err error) {
	s.mu.Lock()
	if err != nil {
		e.state.Status = StatusFailed
		e.state.Err = err
		s.lastError = UploadFailedMessage
	} else {
		e.state.Status = StatusSucceeded
		e.state.Result = res
		s.results = append(s.results, res)
	}
	e.cancel = nil
	s.inFlight--
	st := e.state
	hook := s.onSettle
	s.mu.Unlock()

	if hook != nil {
		hook(st)
	}
}

// Cancel aborts every in-flight upload. Cancelled files end up failed and
// can be retried. The session stays usable.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancelAll
	s.base, s.cancelAll = context.WithCancel(context.Background())
	s.mu.Unlock()

	cancel()
}

// CancelFile aborts one in-flight upload. It reports whether the file was
// in flight.
func (s *Session) CancelFile(id string) bool {
	s.mu.Lock()
	e, ok := s.files[id]
	var cancel context.CancelFunc
	if ok && e.state.Status == StatusPending {
		cancel = e.cancel
	}
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Uploading reports whether any upload is outstanding.
func (s *Session) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// LastError returns the session error message, or "" if the most recent
// drop has had no failure.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Results returns the stored results in completion order.
func (s *Session) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Rejected returns the files excluded by the most recent drop.
func (s *Session) Rejected() []Rejection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Rejection, len(s.rejected))
	copy(out, s.rejected)
	return out
}

// State returns the state of one file.
func (s *Session) State(id string) (FileState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[id]
	if !ok {
		return FileState{}, false
	}
	return e.state, true
}

// States returns every file's state in dispatch order.
func (s *Session) States() []FileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id].state)
	}
	return out
}

// View is a point-in-time copy of the session for rendering.
type View struct {
	Uploading bool
	Error     string
	Results   []Result
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Result, len(s.results))
	copy(results, s.results)
	return View{
		Uploading: s.inFlight > 0,
		Error:     s.lastError,
		Results:   results,
	}
}
