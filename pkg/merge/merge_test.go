package merge

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
)

func businessEvent(caseID, id string, lc model.Lifecycle) model.Event {
	ev := model.Event{CaseID: caseID, Activity: "act-" + id, EventID: id, Lifecycle: lc, Success: true}
	ev.SetAttr("channel", "mail-"+caseID, model.AttrTypeString)
	return ev
}

func botEvent(id, corr string) model.Event {
	ev := model.Event{CaseID: "job-1", Activity: "bot-" + id, EventID: id, Lifecycle: model.LifecycleComplete, Success: true}
	ev.SetAttr("businessActivityId", corr, model.AttrTypeString)
	return ev
}

func ids(log *model.Log) []string {
	out := make([]string, log.Len())
	for i, ev := range log.Events {
		out[i] = ev.EventID
	}
	return out
}

func TestMergePlacement(t *testing.T) {
	business := model.NewLog([]model.Event{
		businessEvent("T1", "p1", model.LifecycleStart),
		businessEvent("T1", "p2", model.LifecycleComplete),
	})
	bot := PrepareBot(model.NewLog([]model.Event{
		botEvent("b1", "p1"),
		botEvent("b2", "p2"),
		botEvent("b3", "p1"),
		botEvent("b4", "p2"),
	}))

	m := New(DefaultConfig())
	merged, err := m.Merge(PrepareBusiness(business, nil), bot)
	require.NoError(t, err)

	// start: bot events after p1; complete: bot events before p2
	assert.Equal(t, []string{"p1", "b1", "b3", "b2", "b4", "p2"}, ids(merged))

	for _, ev := range merged.Events {
		assert.Equal(t, "T1", ev.CaseID, "business case id is broadcast")
		ch, _ := ev.Attr("channel")
		assert.Equal(t, "mail-T1", ch)
	}
	botCase, ok := merged.Events[1].Attr(BotCaseIDKey)
	require.True(t, ok)
	assert.Equal(t, "job-1", botCase)
	assert.True(t, merged.Events[1].Bot)
	assert.False(t, merged.Events[0].Bot)

	assert.Equal(t, 4, m.Stats().Inserted)
	assert.Zero(t, m.Stats().DroppedBot)
	assert.Contains(t, m.Stats().BroadcastColumns, model.KeyCaseID)

	assert.Len(t, business.Events[0].Attributes, 1, "input is not modified")
	assert.Empty(t, bot.Events[0].CaseID, "bot case id moved aside")
}

func TestMergeDropsUncorrelatedAndUnplaced(t *testing.T) {
	business := model.NewLog([]model.Event{
		businessEvent("T1", "p1", model.LifecycleStart),
		businessEvent("T1", "p2", "suspend"),
	})
	bot := PrepareBot(model.NewLog([]model.Event{
		botEvent("b1", "p1"),
		botEvent("b2", "p2"),
		botEvent("b3", "nothing"),
	}))

	m := New(DefaultConfig())
	merged, err := m.Merge(business, bot)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "b1", "p2"}, ids(merged))
	assert.Equal(t, 1, m.Stats().UnplacedBusiness)
	assert.Equal(t, 2, m.Stats().DroppedBot)
}

func TestMergeKeepsTracesContiguous(t *testing.T) {
	business := model.NewLog([]model.Event{
		businessEvent("T1", "p1", model.LifecycleStart),
		businessEvent("T1", "p2", model.LifecycleStart),
		businessEvent("T2", "p3", model.LifecycleComplete),
		businessEvent("T2", "p4", model.LifecycleComplete),
	})
	bot := PrepareBot(model.NewLog([]model.Event{
		botEvent("b1", "p2"),
		botEvent("b2", "p3"),
		botEvent("b3", "p2"),
		botEvent("b4", "p3"),
	}))

	merged, err := New(DefaultConfig()).Merge(business, bot)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "b1", "b3", "b2", "b4", "p3", "p4"}, ids(merged))

	var cases []string
	for _, ev := range merged.Events {
		cases = append(cases, ev.CaseID)
	}
	assert.Equal(t, []string{"T1", "T1", "T1", "T1", "T2", "T2", "T2", "T2"}, cases)
}

func TestMergeRequiresAttributes(t *testing.T) {
	_, err := New(Config{}).Merge(model.NewLog(nil), model.NewLog(nil))
	require.Error(t, err)
}

func TestMergeProgress(t *testing.T) {
	var events []model.Event
	for i := 0; i < 250; i++ {
		events = append(events, businessEvent("T", fmt.Sprintf("p%d", i), model.LifecycleStart))
	}
	var calls []int
	m := New(DefaultConfig(), WithProgress(100, func(done, total int) {
		assert.Equal(t, 250, total)
		calls = append(calls, done)
	}))
	_, err := m.Merge(model.NewLog(events), model.NewLog(nil))
	require.NoError(t, err)
	assert.Equal(t, []int{100, 200, 250}, calls)
}

func TestPrepareBusinessRenames(t *testing.T) {
	ev := model.Event{Activity: "a"}
	ev.SetAttr("eventid", "42", model.AttrTypeString)
	ev.SetAttr("docid_uuid", "doc-1", model.AttrTypeString)

	out := PrepareBusiness(model.NewLog([]model.Event{ev}), map[string]string{
		"eventid":    model.KeyEventID,
		"docid_uuid": model.KeyCaseID,
	})
	got := out.Events[0]
	assert.Equal(t, "42", got.EventID)
	assert.Equal(t, "doc-1", got.CaseID)
	assert.Empty(t, got.Attributes)
}

// buildScenario creates one business event per lifecycle flag (true =
// start) and counts[i] bot events correlated with business event i. Bot
// events are emitted round-robin so that the bot log interleaves groups.
func buildScenario(starts []bool, counts []int) (*model.Log, *model.Log, int) {
	n := len(starts)
	if len(counts) < n {
		n = len(counts)
	}
	var business []model.Event
	for i := 0; i < n; i++ {
		lc := model.LifecycleComplete
		if starts[i] {
			lc = model.LifecycleStart
		}
		business = append(business, businessEvent(fmt.Sprintf("T%d", i/3), fmt.Sprintf("p%d", i), lc))
	}
	var bot []model.Event
	total := 0
	for round := 0; ; round++ {
		added := false
		for i := 0; i < n; i++ {
			if round < counts[i] {
				bot = append(bot, botEvent(fmt.Sprintf("b%d-%d", i, round), fmt.Sprintf("p%d", i)))
				added = true
				total++
			}
		}
		if !added {
			break
		}
	}
	return model.NewLog(business), PrepareBot(model.NewLog(bot)), total
}

func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	merged := func(starts []bool, counts []int) (*model.Log, *model.Log, int) {
		business, bot, total := buildScenario(starts, counts)
		out, err := New(DefaultConfig()).Merge(business, bot)
		if err != nil {
			return nil, nil, 0
		}
		return business, out, total
	}

	properties.Property("output holds every business and correlated bot event", prop.ForAll(
		func(starts []bool, counts []int) bool {
			business, out, total := merged(starts, counts)
			return out != nil && out.Len() == business.Len()+total
		},
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("business order is preserved", prop.ForAll(
		func(starts []bool, counts []int) bool {
			business, out, _ := merged(starts, counts)
			var got []string
			for _, ev := range out.Events {
				if !ev.Bot {
					got = append(got, ev.EventID)
				}
			}
			return fmt.Sprint(got) == fmt.Sprint(nonNil(ids(business)))
		},
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("bot groups are contiguous, on the lifecycle side, in bot-log order", prop.ForAll(
		func(starts []bool, counts []int) bool {
			business, out, _ := merged(starts, counts)
			pos := make(map[string]int)
			for i, ev := range out.Events {
				pos[ev.EventID] = i
			}
			for i := range business.Events {
				k := counts[i]
				at := pos[business.Events[i].EventID]
				for n := 0; n < k; n++ {
					want := at + 1 + n
					if !starts[i] {
						want = at - k + n
					}
					if want < 0 || want >= out.Len() || out.Events[want].EventID != fmt.Sprintf("b%d-%d", i, n) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func nonNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
