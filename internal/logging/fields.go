package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering and alerting.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID identifies one process lifetime.
	FieldRunID = "run_id"
	// FieldSessionID identifies a session process on the daemon bus.
	FieldSessionID = "session_id"
	// FieldCycle is the monotonically increasing arbitration cycle number.
	FieldCycle = "cycle"
	// FieldProfile is the power profile a line refers to.
	FieldProfile = "profile"
	// FieldPowerSource is the sampled power source.
	FieldPowerSource = "power_source"
	// FieldDecisionSource names the arbitration clause that chose a profile.
	FieldDecisionSource = "decision_source"
	// FieldLoad is the one-minute load average.
	FieldLoad = "load_1m"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
