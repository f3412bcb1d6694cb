package security

// Limits bounds parser resource usage on hostile input.
type Limits struct {
	// Maximum total input size in bytes. Default: 256 MB.
	MaxInputSize int64

	// Maximum single string length. Default: 16 MB.
	MaxStringLength int64

	// Maximum single stream payload length. Default: 100 MB.
	MaxStreamLength int64

	// Maximum indirect reference resolution depth. Default: 100.
	MaxIndirectDepth int

	// Maximum xref Prev chain depth. Default: 50.
	MaxXRefDepth int
}

func DefaultLimits() Limits {
	return Limits{
		MaxInputSize:     256 << 20,
		MaxStringLength:  16 << 20,
		MaxStreamLength:  100 << 20,
		MaxIndirectDepth: 100,
		MaxXRefDepth:     50,
	}
}

// OrDefaults fills zero fields from DefaultLimits.
func (l Limits) OrDefaults() Limits {
	d := DefaultLimits()
	if l.MaxInputSize == 0 {
		l.MaxInputSize = d.MaxInputSize
	}
	if l.MaxStringLength == 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxStreamLength == 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxIndirectDepth == 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth == 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	return l
}
