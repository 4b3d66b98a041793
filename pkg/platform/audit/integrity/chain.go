package integrity

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
)

type chainLink struct {
	id        string
	sequence  int64
	timestamp time.Time
}

// ValidateAuditChain walks every event in [from, to), grouped by the instance
// that ingested it and ordered by sequence. Gaps between two events that are
// both younger than the shortest retention period are reported; older gaps
// are expected once retention has run.
func (v *Verifier) ValidateAuditChain(ctx context.Context, from, to time.Time) (report *ChainReport, err error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanChain)
	defer func() { span.End(err) }()

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}

	now := v.now()
	r := &ChainReport{From: from, To: to, Breaks: []Break{}, CheckedAt: now}
	instances := map[string][]chainLink{}

	err = audit.ForEach(ctx, v.reader, audit.Filter{From: from, To: to, Order: audit.OldestFirst}, func(events []audit.Event) error {
		for _, e := range events {
			r.EventsChecked++
			if e.VerificationHash != ComputeEventHash(e) {
				r.Breaks = append(r.Breaks, Break{
					Code:       BreakHashMismatch,
					InstanceID: e.InstanceID,
					EventID:    e.ID,
					Sequence:   e.Sequence,
					Detail:     "recorded hash does not match event fields",
				})
			}
			if e.Sequence > 0 {
				instances[e.InstanceID] = append(instances[e.InstanceID], chainLink{id: e.ID, sequence: e.Sequence, timestamp: e.Timestamp})
			}
		}
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read audit events")
	}

	gapHorizon := now.Add(-audit.ShortestRetention())
	for instanceID, links := range instances {
		r.Breaks = append(r.Breaks, linkBreaks(instanceID, links, gapHorizon)...)
	}
	r.Instances = len(instances)

	slices.SortStableFunc(r.Breaks, func(a, b Break) int {
		return cmp.Or(
			cmp.Compare(a.InstanceID, b.InstanceID),
			cmp.Compare(a.Sequence, b.Sequence),
			cmp.Compare(a.Code, b.Code),
		)
	})
	r.Valid = len(r.Breaks) == 0

	span.SetAttributes(tracer.Int(tracer.AttrResultCount, r.EventsChecked), tracer.Int(tracer.AttrTotal, len(r.Breaks)))
	if !r.Valid {
		v.logger.WarnContext(ctx, "audit chain validation found breaks",
			"from", from,
			"to", to,
			"breaks", len(r.Breaks),
		)
	}
	return r, nil
}

func linkBreaks(instanceID string, links []chainLink, gapHorizon time.Time) []Break {
	slices.SortStableFunc(links, func(a, b chainLink) int {
		return cmp.Or(cmp.Compare(a.sequence, b.sequence), cmp.Compare(a.id, b.id))
	})

	var breaks []Break
	for i := 1; i < len(links); i++ {
		prev, cur := links[i-1], links[i]
		switch {
		case cur.sequence == prev.sequence:
			breaks = append(breaks, Break{
				Code:            BreakDuplicateSequence,
				InstanceID:      instanceID,
				EventID:         cur.id,
				PreviousEventID: prev.id,
				Sequence:        cur.sequence,
				Detail:          fmt.Sprintf("sequence %d used by two events", cur.sequence),
			})
		case cur.sequence > prev.sequence+1 && prev.timestamp.After(gapHorizon) && cur.timestamp.After(gapHorizon):
			breaks = append(breaks, Break{
				Code:            BreakSequenceGap,
				InstanceID:      instanceID,
				EventID:         cur.id,
				PreviousEventID: prev.id,
				Sequence:        cur.sequence,
				Detail:          fmt.Sprintf("sequence jumps from %d to %d", prev.sequence, cur.sequence),
			})
		}
		if cur.timestamp.Before(prev.timestamp) {
			breaks = append(breaks, Break{
				Code:            BreakTimestampRegression,
				InstanceID:      instanceID,
				EventID:         cur.id,
				PreviousEventID: prev.id,
				Sequence:        cur.sequence,
				Detail:          "timestamp is earlier than the preceding sequence number",
			})
		}
	}
	return breaks
}
