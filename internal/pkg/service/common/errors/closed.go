package errors

// ClosedError is returned by a write to an already closed or aborted sink.
type ClosedError struct{}

func NewClosedError() ClosedError {
	return ClosedError{}
}

func (ClosedError) ErrorName() string {
	return CodeClosed
}

func (ClosedError) Error() string {
	return "write to a closed sink"
}

func (ClosedError) ErrorUserMessage() string {
	return "The output has already been closed."
}
