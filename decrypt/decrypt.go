// Package decrypt implements the encryption normalization stage: it
// buffers an incoming PDF, walks an ordered password candidate list, and
// rewrites the file without encryption when a candidate unlocks it. Input
// that no candidate unlocks, or that was never encrypted, passes through
// byte for byte.
package decrypt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/wudi/pdfpipe/observability"
	"github.com/wudi/pdfpipe/security"
)

// ErrCorruptDocument reports input that failed to parse or rewrite for a
// reason other than a password mismatch. Password exhaustion is not an
// error; the original bytes are returned instead.
var ErrCorruptDocument = errors.New("decrypt: corrupt document")

// Opener attempts to open a fully buffered document with one password
// candidate. A mismatch must be reported as an error matching
// security.ErrInvalidPassword; every other error is treated as fatal.
type Opener interface {
	Open(ctx context.Context, data []byte, password string) (Handle, error)
}

// Handle is an opened document. Close releases it and is called exactly
// once per successful Open, on every path.
type Handle interface {
	// Encrypted reports whether the document carries encryption.
	Encrypted() bool
	// Strip rewrites the document without encryption into w.
	Strip(ctx context.Context, w io.Writer) error
	Close() error
}

// Config carries the normalizer's collaborators. Zero fields get
// defaults: a no-op logger and tracer, default limits, and an opener
// backed by the parser and writer packages.
type Config struct {
	// Passwords are tried in order, after the built-in empty password.
	Passwords []string
	Logger    observability.Logger
	Tracer    observability.Tracer
	Limits    security.Limits
	Opener    Opener
}

// Normalizer is the pipeline stage. It is safe for concurrent use; each
// call works on its own buffered copy of the input.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	cfg.Limits = cfg.Limits.OrDefaults()
	if cfg.Opener == nil {
		cfg.Opener = NewDocumentOpener(cfg.Limits)
	}
	return &Normalizer{cfg: cfg}
}

// Normalize buffers r and returns the normalized bytes: the decrypted
// rewrite when some candidate unlocks an encrypted input, or the
// original bytes otherwise.
func (n *Normalizer) Normalize(ctx context.Context, r io.Reader) ([]byte, error) {
	ctx, span := n.cfg.Tracer.StartSpan(ctx, "decrypt.normalize")
	defer span.Finish()

	log := n.cfg.Logger.With(observability.String("run_id", uuid.NewString()))

	data, err := n.buffer(r)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("input_bytes", len(data))

	candidates := append([]string{""}, n.cfg.Passwords...)
	for i, pwd := range candidates {
		if err := ctx.Err(); err != nil {
			span.SetError(err)
			return nil, err
		}

		h, err := n.cfg.Opener.Open(ctx, data, pwd)
		if err != nil {
			if errors.Is(err, security.ErrInvalidPassword) {
				log.Debug("password rejected",
					observability.Int("candidate", i),
					observability.String("password", Redact(pwd)))
				continue
			}
			err = fmt.Errorf("%w: %w", ErrCorruptDocument, err)
			span.SetError(err)
			return nil, err
		}

		out, err := n.consume(ctx, h, log)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCorruptDocument, err)
			span.SetError(err)
			return nil, err
		}
		if out == nil {
			log.Debug("input not encrypted, passing through")
			span.SetTag("outcome", "plain")
			return data, nil
		}
		log.Info("encryption stripped",
			observability.Int("candidate", i),
			observability.String("password", Redact(pwd)))
		span.SetTag("outcome", "decrypted")
		return out, nil
	}

	log.Info("password candidates exhausted, passing through",
		observability.Int("candidates", len(candidates)))
	span.SetTag("outcome", "passthrough")
	return data, nil
}

// Pipe runs Normalize and writes the result to w.
func (n *Normalizer) Pipe(ctx context.Context, r io.Reader, w io.Writer) error {
	out, err := n.Normalize(ctx, r)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func (n *Normalizer) buffer(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, n.cfg.Limits.MaxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("buffer input: %w", err)
	}
	if int64(len(data)) > n.cfg.Limits.MaxInputSize {
		return nil, fmt.Errorf("input exceeds limit of %d bytes", n.cfg.Limits.MaxInputSize)
	}
	return data, nil
}

// consume rewrites an opened document, always closing the handle. A nil
// result with a nil error means the document was not encrypted.
func (n *Normalizer) consume(ctx context.Context, h Handle, log observability.Logger) (out []byte, err error) {
	defer func() {
		if cerr := h.Close(); cerr != nil {
			log.Warn("release document", observability.Error("error", cerr))
		}
	}()

	if !h.Encrypted() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := h.Strip(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Redact keeps at most two leading characters of a password for log
// output. The empty candidate renders as "(empty)".
func Redact(pwd string) string {
	if pwd == "" {
		return "(empty)"
	}
	r := []rune(pwd)
	if len(r) <= 2 {
		return string(r) + "…"
	}
	return string(r[:2]) + "…"
}
