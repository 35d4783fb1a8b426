// Package parser turns vendor RPA logs (UiPath, BluePrism, Automation
// Anywhere) into the canonical event table.
//
// Parsers are pure functions of their config struct: the same input and
// config always produce the same table, including generated event ids.
package parser

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// RecordPolicy decides what happens when a single record cannot be parsed.
type RecordPolicy string

const (
	// PolicyStrict aborts the whole parse on the first bad record.
	PolicyStrict RecordPolicy = "strict"
	// PolicySkip logs the bad record and continues.
	PolicySkip RecordPolicy = "skip"
)

// Option configures a parse call.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	policy   RecordPolicy
	rejected *errors.MultiError
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), policy: PolicyStrict}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for warnings about skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPolicy sets the record error policy. Unknown values mean strict.
func WithPolicy(p RecordPolicy) Option {
	return func(o *options) {
		if p == PolicySkip {
			o.policy = PolicySkip
		} else {
			o.policy = PolicyStrict
		}
	}
}

// WithRejected collects the errors of records skipped under PolicySkip.
func WithRejected(m *errors.MultiError) Option {
	return func(o *options) { o.rejected = m }
}

// handle applies the record policy to a record-level error. It returns the
// error when the parse must abort and nil when the record is skipped.
func (o options) handle(err error, source string, line int) error {
	if o.policy == PolicySkip {
		o.logger.Warn("skipping malformed record", "source", source, "line", line, "error", err)
		if o.rejected != nil {
			o.rejected.Add(err)
		}
		return nil
	}
	return err
}

// eventNamespace scopes generated event ids.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rpaflow/event"))

// syntheticEventID derives a stable id for sources without native event ids.
func syntheticEventID(source string, row int) string {
	return uuid.NewSHA1(eventNamespace, []byte(source+"#"+strconv.Itoa(row))).String()
}
