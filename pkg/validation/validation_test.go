package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "workspace-audit/pkg/domain-errors"
)

type exportRequest struct {
	Format   string    `json:"format" validate:"required,oneof=json csv xlsx"`
	Limit    int       `json:"limit,omitempty" validate:"min=1,max=100"`
	Reason   string    `validate:"notblank"`
	Severity string    `json:"severity" validate:"omitempty,test_severity"`
	AdminID  string    `json:"adminId" validate:"max=8"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to" validate:"gtefield=From"`
}

func init() {
	RegisterValidation("test_severity", func(v string) bool { return v == "LOW" || v == "HIGH" })
}

func TestValidate(t *testing.T) {
	now := time.Now()
	valid := exportRequest{Format: "csv", Limit: 10, Reason: "quarterly review", Severity: "HIGH", From: now, To: now}

	tests := []struct {
		name    string
		mutate  func(*exportRequest)
		message string
	}{
		{"missing format", func(r *exportRequest) { r.Format = "" }, "format is required"},
		{"unknown format", func(r *exportRequest) { r.Format = "pdf" }, "format must be one of [json csv xlsx]"},
		{"limit too large", func(r *exportRequest) { r.Limit = 101 }, "limit must be at most 100"},
		{"untagged field", func(r *exportRequest) { r.Reason = "   " }, "reason must not be blank"},
		{"custom tag", func(r *exportRequest) { r.Severity = "URGENT" }, "severity is invalid"},
		{"json name", func(r *exportRequest) { r.AdminID = "admin-123456" }, "adminId must be at most 8"},
		{"field comparison", func(r *exportRequest) { r.To = now.Add(-time.Hour) }, "to must not be before from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := Validate(req)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.EqualError(t, err, tt.message)
		})
	}

	assert.NoError(t, Validate(valid))
}

// Justification: clients fixing one field at a time should see every
// failure in one response.
func TestValidateReportsEveryField(t *testing.T) {
	err := Validate(exportRequest{Limit: 500, Reason: "x"})
	require.Error(t, err)
	assert.EqualError(t, err, "format is required; limit must be at most 100")
}
