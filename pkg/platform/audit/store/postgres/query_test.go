package postgres

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	audit "workspace-audit/pkg/platform/audit"
)

type QuerySuite struct {
	suite.Suite
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

// Justification: an empty filter must scan the whole table without a dangling WHERE.
func (s *QuerySuite) TestEmptyFilter() {
	where, args := buildWhere(audit.Filter{})
	s.Empty(where)
	s.Empty(args)
}

// Justification: parameters must be numbered in the order they are appended,
// or values bind to the wrong columns.
func (s *QuerySuite) TestParameterNumbering() {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	failed := false

	where, args := buildWhere(audit.Filter{
		AdminID:  "admin-1",
		Category: audit.CategorySecurity,
		Severity: audit.SeverityCritical,
		From:     from,
		To:       to,
		Success:  &failed,
	})

	s.Equal(" WHERE admin_id = $1 AND category = $2 AND severity = $3"+
		" AND timestamp >= $4 AND timestamp < $5 AND success = $6", where)
	s.Equal([]any{"admin-1", "SECURITY", "CRITICAL", from, to, false}, args)
}

// Justification: multi-action filters back the compliance reports.
func (s *QuerySuite) TestActionsUseAny() {
	where, args := buildWhere(audit.Filter{
		Actions: []audit.Action{audit.ActionDataExport, audit.ActionGDPRRequest},
	})
	s.Equal(" WHERE action = ANY($1)", where)
	s.Equal([]any{[]string{"DATA_EXPORT", "GDPR_REQUEST"}}, args)
}

// Justification: free text searches several columns with one escaped pattern so
// user input cannot inject wildcards.
func (s *QuerySuite) TestTextSearchEscapesWildcards() {
	where, args := buildWhere(audit.Filter{Text: `50%_off\x`})
	s.Equal(" WHERE (resource ILIKE $1 OR resource_id ILIKE $1 OR error ILIKE $1"+
		" OR COALESCE(metadata::text, '') ILIKE $1)", where)
	s.Equal([]any{`%50\%\_off\\x%`}, args)
}

// Justification: resource substring search is a single-column ILIKE.
func (s *QuerySuite) TestResourceContains() {
	where, args := buildWhere(audit.Filter{ResourceContains: "user", ResourceID: "u-1"})
	s.Equal(" WHERE resource_id = $1 AND resource ILIKE $2", where)
	s.Equal([]any{"u-1", "%user%"}, args)
}

// Justification: ties on timestamp are broken by id in both directions.
func (s *QuerySuite) TestOrderBy() {
	s.Equal(" ORDER BY timestamp DESC, id DESC", orderBy(audit.NewestFirst))
	s.Equal(" ORDER BY timestamp ASC, id ASC", orderBy(audit.OldestFirst))
}

func TestJSONColumnEmptyIsNull(t *testing.T) {
	v, err := jsonColumn(nil)
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonColumn(map[string]any{"reason": "ticket-42"})
	assert.NoError(t, err)
	assert.Equal(t, `{"reason":"ticket-42"}`, v)
}

// Justification: encoding errors must name the event so the batch can be split.
func (s *QuerySuite) TestRowArgsRejectsNaN() {
	e := audit.Event{ID: "aud_1_00", Metadata: map[string]any{"duration": math.Inf(1)}}
	_, err := rowArgs(e)
	s.Require().Error(err)
	s.Contains(err.Error(), "aud_1_00")

	row, err := rowArgs(audit.Event{ID: "aud_1_01"})
	s.Require().NoError(err)
	s.Len(row, columnCount)
}
