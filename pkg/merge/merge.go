// Package merge interleaves a bot event log into a business process log.
//
// Each business event is matched to the bot events sharing its correlation
// value. For a start event the bot events are placed right after it, for a
// complete event right before it; the bot events keep their bot-log order.
// Placement uses fractional positions between the integer positions of the
// business events, which are then sorted and re-indexed densely.
package merge

import (
	"log/slog"
	"sort"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// BotCaseIDKey holds a bot event's own case id after the business case id
// has been broadcast onto it.
const BotCaseIDKey = "botCaseId"

// Config names the correlation attributes on both sides.
type Config struct {
	BusinessAttribute string `yaml:"business_attribute"`
	BotAttribute      string `yaml:"bot_attribute"`
	// TraceIDKey is the key the merged log exposes its case id under.
	TraceIDKey string `yaml:"trace_id_key"`
	// Renames are applied to the business log's non-canonical attributes
	// before merging (e.g. eventid -> eventId).
	Renames map[string]string `yaml:"renames"`
}

// DefaultConfig returns the BPI challenge correlation.
func DefaultConfig() Config {
	return Config{
		BusinessAttribute: model.KeyEventID,
		BotAttribute:      "businessActivityId",
		TraceIDKey:        "caseId",
	}
}

// Stats summarizes one merge.
type Stats struct {
	BusinessEvents   int
	BotEvents        int
	Inserted         int
	UnplacedBusiness int
	DroppedBot       int
	BroadcastColumns []string
}

// ProgressFunc receives the number of business events processed.
type ProgressFunc func(done, total int)

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithProgress reports progress every `every` business events.
func WithProgress(every int, fn ProgressFunc) Option {
	return func(m *Merger) {
		m.progress = fn
		m.every = every
	}
}

// Merger merges business and bot logs.
type Merger struct {
	cfg      Config
	logger   *slog.Logger
	progress ProgressFunc
	every    int
	stats    Stats
}

// New creates a Merger.
func New(cfg Config, opts ...Option) *Merger {
	m := &Merger{cfg: cfg, logger: slog.Default(), every: 100}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stats returns the statistics of the last Merge call.
func (m *Merger) Stats() Stats {
	return m.stats
}

// placed is one row of the merged table with its sort key. gap is the
// integer part of the position; rank orders rows inside one gap: the
// business event itself, then bot events placed after it, then bot events
// placed before the next business event.
type placed struct {
	gap  int
	rank int
	pos  float64
	ev   model.Event
}

const (
	rankBusiness = iota
	rankAfter
	rankBefore
)

// Merge returns a new table holding every business event plus every
// correlated bot event. Neither input is modified.
//
// Columns present in the business table but absent from the bot table are
// copied from the business event onto each bot event placed next to it;
// this carries the business case id onto bot rows. Bot events whose
// correlation value matches no business event are dropped.
func (m *Merger) Merge(business, bot *model.Log) (*model.Log, error) {
	if m.cfg.BusinessAttribute == "" || m.cfg.BotAttribute == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "merge: both correlation attributes are required")
	}
	m.stats = Stats{BusinessEvents: business.Len(), BotEvents: bot.Len()}

	byKey := make(map[string][]int)
	for i := range bot.Events {
		if v, ok := bot.Events[i].Value(m.cfg.BotAttribute); ok {
			byKey[v] = append(byKey[v], i)
		}
	}

	broadcast := difference(business.Columns(), bot.Columns())
	m.stats.BroadcastColumns = broadcast

	rows := make([]placed, 0, business.Len()+bot.Len())
	used := make(map[int]bool)
	total := business.Len()
	for i := range business.Events {
		if m.progress != nil && m.every > 0 && i > 0 && i%m.every == 0 {
			m.progress(i, total)
		}
		bp := &business.Events[i]
		rows = append(rows, placed{gap: i, rank: rankBusiness, pos: float64(i), ev: bp.Clone()})

		key, ok := bp.Value(m.cfg.BusinessAttribute)
		matches := byKey[key]
		if ok && len(matches) > 0 {
			var gap, rank int
			switch bp.Lifecycle {
			case model.LifecycleStart:
				gap, rank = i, rankAfter
			case model.LifecycleComplete:
				gap, rank = i-1, rankBefore
			default:
				m.stats.UnplacedBusiness++
				m.logger.Warn("business event has no placement for its lifecycle; correlated bot events skipped",
					"index", i, "lifecycle", string(bp.Lifecycle), "bot_events", len(matches))
				continue
			}
			step := 1 / float64(len(matches)+1)
			for n, bi := range matches {
				ev := bot.Events[bi].Clone()
				for _, col := range broadcast {
					if v, ok := bp.Value(col); ok {
						ev.Set(col, v)
					}
				}
				rows = append(rows, placed{gap: gap, rank: rank, pos: float64(gap) + float64(n+1)*step, ev: ev})
				used[bi] = true
			}
			m.stats.Inserted += len(matches)
		}
	}
	if m.progress != nil {
		m.progress(total, total)
	}

	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if ra.gap != rb.gap {
			return ra.gap < rb.gap
		}
		if ra.rank != rb.rank {
			return ra.rank < rb.rank
		}
		return ra.pos < rb.pos
	})

	out := make([]model.Event, len(rows))
	for i := range rows {
		out[i] = rows[i].ev
	}

	m.stats.DroppedBot = bot.Len() - len(used)
	if m.stats.DroppedBot > 0 {
		m.logger.Warn("bot events without a placeable business event were dropped", "count", m.stats.DroppedBot)
	}
	m.logger.Info("merged logs", "business", m.stats.BusinessEvents, "bot", m.stats.BotEvents,
		"inserted", m.stats.Inserted, "rows", len(out))
	return model.NewLog(out), nil
}

func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
