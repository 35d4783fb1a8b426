package merge

import "github.com/rpaflow/rpaflow/internal/model"

// PrepareBot readies a parsed bot log for merging: every row is flagged as
// a bot event and its own case id moves to BotCaseIDKey, leaving the case
// id column to be filled from the business side.
func PrepareBot(log *model.Log) *model.Log {
	out := log.Clone()
	for i := range out.Events {
		ev := &out.Events[i]
		ev.Bot = true
		if ev.CaseID != "" {
			ev.SetAttr(BotCaseIDKey, ev.CaseID, model.AttrTypeString)
		}
		ev.CaseID = ""
	}
	return out
}

// PrepareBusiness flags every row as a human event and applies attribute
// renames. A rename onto a canonical key fills the canonical column.
func PrepareBusiness(log *model.Log, renames map[string]string) *model.Log {
	out := log.Clone()
	for i := range out.Events {
		ev := &out.Events[i]
		ev.Bot = false
		for from, to := range renames {
			v, ok := ev.Attr(from)
			if !ok {
				continue
			}
			ev.DeleteAttr(from)
			ev.Set(to, v)
		}
	}
	return out
}
