package parser

import (
	"regexp"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// Role is a canonical column role a vendor column can be bound to.
type Role string

const (
	RoleCorrelation    Role = "connectingAttribute"
	RoleActivity       Role = "conceptName"
	RoleTimestamp      Role = "timestamp"
	RoleEventID        Role = "eventId"
	RoleCaseID         Role = "caseId"
	RoleResource       Role = "resource"
	RoleProcessName    Role = "processName"
	RoleProcessVersion Role = "processVersionNumber"
	RoleLifecycle      Role = "lifecycle"
	RoleSuccess        Role = "success"
)

// Matcher decides whether a column name belongs to a role.
type Matcher interface {
	Match(column string) bool
	String() string
}

// Substring matches columns containing the pattern anywhere, which lets a
// short attribute name select a dotted JSON path.
type Substring string

func (s Substring) Match(column string) bool { return strings.Contains(column, string(s)) }
func (s Substring) String() string           { return string(s) }

// Exact matches a single column name.
type Exact string

func (e Exact) Match(column string) bool { return column == string(e) }
func (e Exact) String() string           { return string(e) }

// Pattern matches columns against a regular expression.
type Pattern struct{ *regexp.Regexp }

func (p Pattern) Match(column string) bool { return p.MatchString(column) }

// Rule pairs a role with its matcher.
type Rule struct {
	Role    Role
	Matcher Matcher
}

// Normalizer binds input columns onto canonical roles.
//
// Chain rules are exclusive: each column is offered to the chain in order
// and bound to the first role that matches and is still unbound. Independent
// rules are evaluated for every column regardless of the chain, so one raw
// column may serve both lifecycle and success.
type Normalizer struct {
	Chain       []Rule
	Independent []Rule
}

// Binding maps each role to the column bound to it.
type Binding map[Role]string

// Bind scans columns in order and returns the binding. Every rule's role is
// required: when any stays unbound the result is a SchemaMismatch error
// listing all of them.
func (n *Normalizer) Bind(columns []string) (Binding, error) {
	b := make(Binding)
	for _, col := range columns {
		for _, r := range n.Chain {
			if r.Matcher.Match(col) {
				if _, done := b[r.Role]; !done {
					b[r.Role] = col
				}
				break
			}
		}
		for _, r := range n.Independent {
			if _, done := b[r.Role]; done {
				continue
			}
			if r.Matcher.Match(col) {
				b[r.Role] = col
			}
		}
	}

	var missing []string
	for _, rules := range [][]Rule{n.Chain, n.Independent} {
		for _, r := range rules {
			if _, ok := b[r.Role]; !ok {
				missing = append(missing, string(r.Role))
			}
		}
	}
	if len(missing) > 0 {
		return nil, errors.SchemaMismatch(missing)
	}
	return b, nil
}
