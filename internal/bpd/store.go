// Package bpd stores bank parameter data (BPD): the capability descriptor a
// bank hands out once per parameter version. Entries are keyed by bank
// country number (280 for Germany) and bank code.
package bpd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fjacquet/ebics-mt940/internal/logging"
)

// Backends accepted by NewStore.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// ErrNoVersion is returned by ParseVersion when no HIBPA segment parses.
var ErrNoVersion = errors.New("bpd: no HIBPA segment")

// Store persists raw BPD per bank.
type Store interface {
	// Version returns the HIBPA version of the stored BPD. ok is false
	// when nothing is stored.
	Version(ctx context.Context, country, code int) (version int, ok bool, err error)
	Get(ctx context.Context, country, code int) (bpd string, ok bool, err error)
	// Save overwrites any BPD stored for the bank.
	Save(ctx context.Context, country, code int, bpd string) error
	Delete(ctx context.Context, country, code int) error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Directory string
	DSN       string
}

// NewStore builds the backend named in opts. An empty backend means memory.
func NewStore(ctx context.Context, opts Options, logger logging.Logger) (Store, error) {
	logger = logging.OrDefault(logger).WithField(logging.FieldBackend, opts.Backend)
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(logger), nil
	case BackendFile:
		return NewFileStore(opts.Directory, logger)
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, opts.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("bpd: unknown backend %q", opts.Backend)
	}
}

// HIBPA:5:3:3+39+280:10090000+Berliner Volksbank+1+1+300+1000
var hibpaPayload = regexp.MustCompile(`^(\d*)\+(\d*):(\d*)\+(.*)\+(\d*)\+(\d*)\+(\d+)?`)

// ParseVersion returns the BPD version announced in the first HIBPA segment
// of raw. Segments that fail to parse are logged and skipped.
func ParseVersion(raw string, logger logging.Logger) (int, error) {
	logger = logging.OrDefault(logger)
	for _, seg := range SplitSegments(raw) {
		head, payload, _ := strings.Cut(seg, "+")
		if name, _, _ := strings.Cut(head, ":"); name != "HIBPA" {
			continue
		}
		m := hibpaPayload.FindStringSubmatch(payload)
		if m == nil {
			logger.Warn("Couldn't parse segment", logging.Field{Key: "segment", Value: seg})
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			logger.Warn("Couldn't parse segment",
				logging.Field{Key: "segment", Value: seg},
				logging.Field{Key: logging.FieldError, Value: err.Error()})
			continue
		}
		return v, nil
	}
	return 0, ErrNoVersion
}

// SplitSegments splits FinTS data on unescaped segment terminators ('). A
// terminator preceded by the release character ? belongs to the data.
func SplitSegments(raw string) []string {
	var (
		segs []string
		sb   strings.Builder
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '?' && i+1 < len(raw):
			sb.WriteByte(c)
			sb.WriteByte(raw[i+1])
			i++
		case c == '\'':
			segs = append(segs, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		segs = append(segs, sb.String())
	}
	for i, s := range segs {
		segs[i] = strings.TrimLeft(s, "\r\n")
	}
	return segs
}

// versionOf is the shared Version implementation of the backends that keep
// only the raw data.
func versionOf(ctx context.Context, s Store, country, code int, logger logging.Logger) (int, bool, error) {
	raw, ok, err := s.Get(ctx, country, code)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := ParseVersion(raw, logger)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
