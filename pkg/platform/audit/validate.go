package audit

import "workspace-audit/pkg/validation"

// Struct tags for request types that carry taxonomy values:
// `validate:"omitempty,audit_category"` and friends.
func init() {
	validation.RegisterValidation("audit_category", func(v string) bool { return Category(v).IsValid() })
	validation.RegisterValidation("audit_severity", func(v string) bool { return Severity(v).IsValid() })
	validation.RegisterValidation("audit_action", func(v string) bool { return Action(v).IsValid() })
}
