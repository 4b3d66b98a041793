package integrity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"slices"
	"time"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/tracer"
)

// IssueCode classifies a problem found on a single event.
type IssueCode string

const (
	IssueMissingField        IssueCode = "MISSING_FIELD"
	IssueMissingHash         IssueCode = "MISSING_HASH"
	IssueHashMismatch        IssueCode = "HASH_MISMATCH"
	IssueFutureTimestamp     IssueCode = "FUTURE_TIMESTAMP"
	IssueIDTimestampMismatch IssueCode = "ID_TIMESTAMP_MISMATCH"
)

// BreakCode classifies a problem found between events of one instance.
type BreakCode string

const (
	BreakHashMismatch        BreakCode = "HASH_MISMATCH"
	BreakSequenceGap         BreakCode = "SEQUENCE_GAP"
	BreakTimestampRegression BreakCode = "TIMESTAMP_REGRESSION"
	BreakDuplicateSequence   BreakCode = "DUPLICATE_SEQUENCE"
)

const (
	futureTolerance = time.Minute
	idSkewTolerance = time.Second
)

// Issue is one finding from VerifyAuditIntegrity.
type Issue struct {
	Code   IssueCode `json:"code"`
	Field  string    `json:"field,omitempty"`
	Detail string    `json:"detail"`
}

// Report is the result of verifying one stored event.
type Report struct {
	EventID      string    `json:"eventId"`
	Valid        bool      `json:"valid"`
	StoredHash   string    `json:"storedHash,omitempty"`
	ComputedHash string    `json:"computedHash"`
	Issues       []Issue   `json:"issues"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Break describes one broken link found by ValidateAuditChain.
type Break struct {
	Code            BreakCode `json:"code"`
	InstanceID      string    `json:"instanceId"`
	EventID         string    `json:"eventId"`
	PreviousEventID string    `json:"previousEventId,omitempty"`
	Sequence        int64     `json:"sequence"`
	Detail          string    `json:"detail"`
}

// ChainReport is the result of validating a time range.
type ChainReport struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	EventsChecked int       `json:"eventsChecked"`
	Instances     int       `json:"instances"`
	Valid         bool      `json:"valid"`
	Breaks        []Break   `json:"breaks"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Verifier checks persisted events. Findings are reported, never corrected.
type Verifier struct {
	reader audit.Reader
	now    func() time.Time
	logger *slog.Logger
	tracer tracer.Tracer
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(v *Verifier) {
		v.tracer = t
	}
}

func NewVerifier(reader audit.Reader, opts ...Option) *Verifier {
	v := &Verifier{
		reader: reader,
		now:    time.Now,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyAuditIntegrity loads the event and checks its hash, required fields
// and timestamps.
func (v *Verifier) VerifyAuditIntegrity(ctx context.Context, eventID string) (report *Report, err error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrEventID, eventID))
	defer func() { span.End(err) }()

	if eventID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event id is required")
	}
	event, err := v.reader.Get(ctx, eventID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load audit event")
	}

	r := Check(*event, v.now())
	if !r.Valid {
		span.AddEvent(tracer.EventIssueFound, tracer.Int(tracer.AttrResultCount, len(r.Issues)))
		v.logger.WarnContext(ctx, "audit event failed integrity check",
			"event_id", eventID,
			"issues", r.Issues,
		)
	}
	return &r, nil
}

// Check verifies a single event without touching the store.
func Check(e audit.Event, now time.Time) Report {
	r := Report{
		EventID:      e.ID,
		StoredHash:   e.VerificationHash,
		ComputedHash: ComputeEventHash(e),
		Issues:       []Issue{},
		CheckedAt:    now,
	}

	for field, missing := range map[string]bool{
		"id":        e.ID == "",
		"category":  e.Category == "",
		"action":    e.Action == "",
		"severity":  e.Severity == "",
		"adminId":   e.AdminID == "",
		"resource":  e.Resource == "",
		"timestamp": e.Timestamp.IsZero(),
	} {
		if missing {
			r.Issues = append(r.Issues, Issue{Code: IssueMissingField, Field: field, Detail: field + " is empty"})
		}
	}

	switch {
	case e.VerificationHash == "":
		r.Issues = append(r.Issues, Issue{Code: IssueMissingHash, Field: "verificationHash", Detail: "no verification hash recorded"})
	case subtle.ConstantTimeCompare([]byte(e.VerificationHash), []byte(r.ComputedHash)) != 1:
		r.Issues = append(r.Issues, Issue{Code: IssueHashMismatch, Field: "verificationHash", Detail: "recorded hash does not match event fields"})
	}

	if !e.Timestamp.IsZero() {
		if e.Timestamp.After(now.Add(futureTolerance)) {
			r.Issues = append(r.Issues, Issue{
				Code:   IssueFutureTimestamp,
				Field:  "timestamp",
				Detail: fmt.Sprintf("timestamp is %s ahead of now", e.Timestamp.Sub(now).Round(time.Second)),
			})
		}
		if e.ID != "" {
			idTime, ok := audit.EventIDTime(e.ID)
			switch {
			case !ok:
				r.Issues = append(r.Issues, Issue{Code: IssueIDTimestampMismatch, Field: "id", Detail: "id does not embed a timestamp"})
			case absDuration(idTime.Sub(e.Timestamp)) > idSkewTolerance:
				r.Issues = append(r.Issues, Issue{
					Code:   IssueIDTimestampMismatch,
					Field:  "id",
					Detail: fmt.Sprintf("id time %s differs from timestamp %s", idTime.Format(TimestampLayout), formatTimestamp(e.Timestamp)),
				})
			}
		}
	}

	slices.SortFunc(r.Issues, func(a, b Issue) int {
		if a.Code != b.Code {
			if a.Code < b.Code {
				return -1
			}
			return 1
		}
		if a.Field < b.Field {
			return -1
		}
		if a.Field > b.Field {
			return 1
		}
		return 0
	})
	r.Valid = len(r.Issues) == 0
	return r
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
