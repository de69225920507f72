package doclink

// Listener receives the Engine's results. Calls are made one at a time,
// in the order the events happened, from a goroutine owned by the Engine.
// Implementations may call back into the Engine.
type Listener interface {
	// ReferencesResolved delivers the ranked references at a line once an
	// asynchronous lazy load finishes.
	ReferencesResolved(file string, line int, refs []Reference)
	RefreshSucceeded()
	RefreshFailed(errs []ReportedError)
	NotFoundUpdated(notFound []NotFound)
	// FetchFailed reports a single-file load that failed. The file keeps
	// whatever entry it had.
	FetchFailed(file string, errs []ReportedError)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	OnReferencesResolved func(file string, line int, refs []Reference)
	OnRefreshSucceeded   func()
	OnRefreshFailed      func(errs []ReportedError)
	OnNotFoundUpdated    func(notFound []NotFound)
	OnFetchFailed        func(file string, errs []ReportedError)
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) ReferencesResolved(file string, line int, refs []Reference) {
	if l.OnReferencesResolved != nil {
		l.OnReferencesResolved(file, line, refs)
	}
}

func (l ListenerFuncs) RefreshSucceeded() {
	if l.OnRefreshSucceeded != nil {
		l.OnRefreshSucceeded()
	}
}

func (l ListenerFuncs) RefreshFailed(errs []ReportedError) {
	if l.OnRefreshFailed != nil {
		l.OnRefreshFailed(errs)
	}
}

func (l ListenerFuncs) NotFoundUpdated(notFound []NotFound) {
	if l.OnNotFoundUpdated != nil {
		l.OnNotFoundUpdated(notFound)
	}
}

func (l ListenerFuncs) FetchFailed(file string, errs []ReportedError) {
	if l.OnFetchFailed != nil {
		l.OnFetchFailed(file, errs)
	}
}
