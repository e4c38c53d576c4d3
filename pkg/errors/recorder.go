package errors

import "sync"

// Recorder is an ErrorHandler that keeps every report in memory.
// Next, when set, also receives each report.
type Recorder struct {
	Next ErrorHandler

	mu     sync.Mutex
	errs   []*BridgeError
	panics []*PanicError
}

// HandleError records err.
func (r *Recorder) HandleError(err *BridgeError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.HandleError(err)
	}
}

// HandlePanic records err.
func (r *Recorder) HandlePanic(err *PanicError) {
	r.mu.Lock()
	r.panics = append(r.panics, err)
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.HandlePanic(err)
	}
}

// Errors returns a copy of the recorded errors.
func (r *Recorder) Errors() []*BridgeError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*BridgeError(nil), r.errs...)
}

// Panics returns a copy of the recorded panics.
func (r *Recorder) Panics() []*PanicError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*PanicError(nil), r.panics...)
}

// Count returns how many errors of the given kind were recorded.
func (r *Recorder) Count(kind ErrorKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errs {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Install makes r the global handler until the returned restore func runs.
//
//	t.Cleanup(rec.Install())
func (r *Recorder) Install() (restore func()) {
	prev := getHandler()
	SetHandler(r)
	return func() { SetHandler(prev) }
}
