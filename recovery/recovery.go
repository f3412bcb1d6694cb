// Package recovery defines the error-recovery policy consulted by the
// scanner and parser when they hit malformed structure.
package recovery

type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pinpoints where in the file a problem was seen.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionWarn
)
