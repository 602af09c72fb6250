package isolate

// future is the handle of one dispatched task. The worker completes it
// exactly once and the collector reads it after the join barrier.
type future struct {
	done   chan struct{}
	result TaskResult
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(r TaskResult) {
	f.result = r
	close(f.done)
}

func (f *future) wait() TaskResult {
	<-f.done
	return f.result
}
