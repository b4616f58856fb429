package authz

// Decision pairs a check result with the action name used in logs and metrics.
type Decision struct {
	Action  string
	Allowed bool
}

func Decide(action string, allowed bool) Decision {
	return Decision{Action: action, Allowed: allowed}
}

func (d Decision) Label() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// action names
const (
	ActionCreateRecord     = "create_record"
	ActionViewAllRecords   = "view_all_records"
	ActionViewRecord       = "view_record"
	ActionViewPatient      = "view_patient_records"
	ActionViewDoctor       = "view_doctor_records"
	ActionModifyRecord     = "modify_record"
	ActionDeleteRecord     = "delete_record"
	ActionListUsers        = "list_users"
	ActionViewUser         = "view_user"
	ActionUpdateUser       = "update_user"
	ActionChangeRole       = "change_role"
	ActionDeleteUser       = "delete_user"
	ActionViewAuditHistory = "view_audit_history"
	ActionVerifyLedger     = "verify_ledger"
)
