package audit

import (
	"fmt"
	"slices"

	dErrors "workspace-audit/pkg/domain-errors"
)

// Action names one audited operation. Every action belongs to exactly one category.
type Action string

const (
	// Authentication
	ActionLogin         Action = "LOGIN"
	ActionLogout        Action = "LOGOUT"
	ActionFailedLogin   Action = "FAILED_LOGIN"
	ActionPasswordReset Action = "PASSWORD_RESET"
	ActionMFAEnabled    Action = "MFA_ENABLED"
	ActionMFADisabled   Action = "MFA_DISABLED"

	// User management
	ActionUserCreate       Action = "USER_CREATE"
	ActionUserUpdate       Action = "USER_UPDATE"
	ActionUserDelete       Action = "USER_DELETE"
	ActionUserSuspend      Action = "USER_SUSPEND"
	ActionUserActivate     Action = "USER_ACTIVATE"
	ActionRoleAssignment   Action = "ROLE_ASSIGNMENT"
	ActionPermissionChange Action = "PERMISSION_CHANGE"

	// Payment management
	ActionPaymentRefund      Action = "PAYMENT_REFUND"
	ActionSubscriptionUpdate Action = "SUBSCRIPTION_UPDATE"
	ActionSubscriptionCancel Action = "SUBSCRIPTION_CANCEL"
	ActionBillingUpdate      Action = "BILLING_UPDATE"

	// System configuration
	ActionConfigUpdate      Action = "CONFIG_UPDATE"
	ActionIntegrationUpdate Action = "INTEGRATION_UPDATE"

	// Feature flags
	ActionFeatureFlagToggle Action = "FEATURE_FLAG_TOGGLE"

	// Maintenance
	ActionMaintenanceMode Action = "MAINTENANCE_MODE"
	ActionBackupCreate    Action = "BACKUP_CREATE"
	ActionDataMigration   Action = "DATA_MIGRATION"

	// Security
	ActionSecurityPolicyUpdate Action = "SECURITY_POLICY_UPDATE"
	ActionAPIKeyCreate         Action = "API_KEY_CREATE"
	ActionAPIKeyRevoke         Action = "API_KEY_REVOKE"
	ActionSuspiciousActivity   Action = "SUSPICIOUS_ACTIVITY"

	// Data access
	ActionDataView   Action = "DATA_VIEW"
	ActionDataExport Action = "DATA_EXPORT"
	ActionDataModify Action = "DATA_MODIFY"
	ActionDataDelete Action = "DATA_DELETE"

	// Compliance
	ActionGDPRRequest      Action = "GDPR_REQUEST"
	ActionAuditExport      Action = "AUDIT_EXPORT"
	ActionComplianceReport Action = "COMPLIANCE_REPORT"

	// Admin actions
	ActionAdminImpersonation Action = "ADMIN_IMPERSONATION"
	ActionBulkOperation      Action = "BULK_OPERATION"
)

var actionCategories = map[Action]Category{
	ActionLogin:         CategoryAuthentication,
	ActionLogout:        CategoryAuthentication,
	ActionFailedLogin:   CategoryAuthentication,
	ActionPasswordReset: CategoryAuthentication,
	ActionMFAEnabled:    CategoryAuthentication,
	ActionMFADisabled:   CategoryAuthentication,

	ActionUserCreate:       CategoryUserManagement,
	ActionUserUpdate:       CategoryUserManagement,
	ActionUserDelete:       CategoryUserManagement,
	ActionUserSuspend:      CategoryUserManagement,
	ActionUserActivate:     CategoryUserManagement,
	ActionRoleAssignment:   CategoryUserManagement,
	ActionPermissionChange: CategoryUserManagement,

	ActionPaymentRefund:      CategoryPaymentManagement,
	ActionSubscriptionUpdate: CategoryPaymentManagement,
	ActionSubscriptionCancel: CategoryPaymentManagement,
	ActionBillingUpdate:      CategoryPaymentManagement,

	ActionConfigUpdate:      CategorySystemConfig,
	ActionIntegrationUpdate: CategorySystemConfig,

	ActionFeatureFlagToggle: CategoryFeatureFlags,

	ActionMaintenanceMode: CategoryMaintenance,
	ActionBackupCreate:    CategoryMaintenance,
	ActionDataMigration:   CategoryMaintenance,

	ActionSecurityPolicyUpdate: CategorySecurity,
	ActionAPIKeyCreate:         CategorySecurity,
	ActionAPIKeyRevoke:         CategorySecurity,
	ActionSuspiciousActivity:   CategorySecurity,

	ActionDataView:   CategoryDataAccess,
	ActionDataExport: CategoryDataAccess,
	ActionDataModify: CategoryDataAccess,
	ActionDataDelete: CategoryDataAccess,

	ActionGDPRRequest:      CategoryCompliance,
	ActionAuditExport:      CategoryCompliance,
	ActionComplianceReport: CategoryCompliance,

	ActionAdminImpersonation: CategoryAdminActions,
	ActionBulkOperation:      CategoryAdminActions,
}

// Category returns the category an action belongs to, or "" for unknown actions.
func (a Action) Category() Category {
	return actionCategories[a]
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	_, ok := actionCategories[a]
	return ok
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Actions returns every action belonging to c.
func (c Category) Actions() []Action {
	var out []Action
	for a, cat := range actionCategories {
		if cat == c {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}

// Categories lists every category.
func Categories() []Category {
	return []Category{
		CategoryAuthentication,
		CategoryUserManagement,
		CategoryPaymentManagement,
		CategorySystemConfig,
		CategorySecurity,
		CategoryDataAccess,
		CategoryAdminActions,
		CategoryFeatureFlags,
		CategoryMaintenance,
		CategoryCompliance,
	}
}

// ResolveCategory checks the category/action pairing. An empty category is
// derived from the action; a category that disagrees with the action is rejected.
func ResolveCategory(category Category, action Action) (Category, error) {
	expected, ok := actionCategories[action]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown audit action %q", action)
	}
	if category == "" {
		return expected, nil
	}
	if category != expected {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("action %s belongs to category %s, not %s", action, expected, category))
	}
	return category, nil
}

// Validate checks an entry for the fields every audit event needs.
func (e Entry) Validate() error {
	if _, err := ResolveCategory(e.Category, e.Action); err != nil {
		return err
	}
	if !e.Severity.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid severity %q", e.Severity)
	}
	if e.AdminID == "" {
		return dErrors.New(dErrors.CodeValidation, "admin id is required")
	}
	if e.Resource == "" {
		return dErrors.New(dErrors.CodeValidation, "resource is required")
	}
	if e.Success && e.Error != "" {
		return dErrors.New(dErrors.CodeValidation, "error detail is only allowed on failed events")
	}
	if err := CheckEncodable(e.OldValues, e.NewValues, e.Metadata); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "audit payload must be JSON-encodable")
	}
	return nil
}
