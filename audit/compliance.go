package audit

const (
	// DefaultRetention applies to event types without a retention mapping.
	DefaultRetention = "5_years"
	generalFlag      = "GENERAL"
)

var (
	soxBSAAML = []string{"SOX", "BSA", "AML"}

	defaultCompliance = map[EventType][]string{
		EventLoginSuccess:       {"SOX", "PCI_DSS"},
		EventLoginFailed:        {"SOX", "PCI_DSS"},
		EventLogout:             {"SOX"},
		EventSessionExpired:     {"SOX"},
		EventPasswordChange:     {"SOX", "PCI_DSS"},
		EventAccessDenied:       {"SOX", "PCI_DSS"},
		EventPermissionChange:   {"SOX", "GLBA"},
		EventRoleAssignment:     {"SOX", "GLBA"},
		EventUserCreate:         {"SOX", "GLBA"},
		EventUserModify:         {"SOX", "GLBA"},
		EventUserDelete:         {"SOX", "GLBA"},
		EventAccountOpen:        {"BSA", "KYC", "GLBA"},
		EventAccountClose:       {"BSA", "GLBA"},
		EventTransactionCreate:  soxBSAAML,
		EventTransactionModify:  soxBSAAML,
		EventTransactionApprove: soxBSAAML,
		EventFundsTransfer:      {"SOX", "BSA", "AML", "OFAC"},
		EventDataAccess:         {"GLBA", "PCI_DSS"},
		EventDataExport:         {"GLBA", "PCI_DSS", "GDPR"},
		EventConfigChange:       {"SOX"},
		EventSecurityIncident:   {"SOX", "GLBA", "FFIEC"},
		EventSuspiciousActivity: {"BSA", "AML", "FFIEC"},
	}

	defaultRetention = map[EventType]string{
		EventLoginSuccess:       "3_years",
		EventLoginFailed:        "3_years",
		EventPermissionChange:   "7_years",
		EventRoleAssignment:     "7_years",
		EventUserCreate:         "7_years",
		EventUserModify:         "7_years",
		EventUserDelete:         "7_years",
		EventAccountOpen:        "7_years",
		EventAccountClose:       "7_years",
		EventTransactionCreate:  "7_years",
		EventTransactionModify:  "7_years",
		EventTransactionApprove: "7_years",
		EventFundsTransfer:      "7_years",
		EventConfigChange:       "7_years",
		EventSecurityIncident:   "7_years",
		EventSuspiciousActivity: "7_years",
	}
)

// Tables holds the event type to compliance flag and retention lookups.
// The zero value resolves every type to the defaults.
type Tables struct {
	compliance map[EventType][]string
	retention  map[EventType]string
}

// DefaultTables returns the built-in compliance and retention tables.
func DefaultTables() Tables {
	return NewTables(nil, nil)
}

// NewTables builds tables from the built-in defaults overlaid with the
// given overrides. The input maps are copied.
func NewTables(compliance map[EventType][]string, retention map[EventType]string) Tables {
	t := Tables{
		compliance: make(map[EventType][]string, len(defaultCompliance)+len(compliance)),
		retention:  make(map[EventType]string, len(defaultRetention)+len(retention)),
	}
	for k, v := range defaultCompliance {
		t.compliance[k] = cloneFlags(v)
	}
	for k, v := range compliance {
		t.compliance[k] = cloneFlags(v)
	}
	for k, v := range defaultRetention {
		t.retention[k] = v
	}
	for k, v := range retention {
		t.retention[k] = v
	}
	return t
}

// ComplianceFlags returns a fresh copy of the flags for et, or
// ["GENERAL"] when et is unmapped.
func (t Tables) ComplianceFlags(et EventType) []string {
	if flags, ok := t.compliance[et]; ok && len(flags) > 0 {
		return cloneFlags(flags)
	}
	return []string{generalFlag}
}

// RetentionPeriod returns the retention for et, or [DefaultRetention].
func (t Tables) RetentionPeriod(et EventType) string {
	if r, ok := t.retention[et]; ok && r != "" {
		return r
	}
	return DefaultRetention
}

func cloneFlags(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
