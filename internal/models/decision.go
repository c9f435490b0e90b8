package models

// DecisionOutcome classifies the terminal state of a login attempt.
type DecisionOutcome string

const (
	DecisionAllow   DecisionOutcome = "allow"
	DecisionDeny    DecisionOutcome = "deny"
	DecisionBlocked DecisionOutcome = "blocked"
)

// DenialReason is the enumerated code explaining why a login was refused,
// used for both user messaging and audit classification.
type DenialReason string

const (
	DenyInvalidUsername     DenialReason = "invalid_username"
	DenyInvalidPassword     DenialReason = "invalid_password"
	DenyDeviceNotRegistered DenialReason = "device_not_registered"
	DenyWrongBranch         DenialReason = "wrong_branch"
	DenyCrossBranchDevice   DenialReason = "cross_branch_device"
	DenyDeviceBlocked       DenialReason = "device_blocked"
	DenyFingerprintMismatch DenialReason = "fingerprint_mismatch"
)

// escalationReasons are the denial reasons that trigger a notification to
// super-administrators.
var escalationReasons = map[DenialReason]bool{
	DenyWrongBranch:         true,
	DenyDeviceNotRegistered: true,
	DenyDeviceBlocked:       true,
	DenyFingerprintMismatch: true,
}

// Escalates reports whether a denial with this reason must be dispatched to
// active super-administrators.
func (r DenialReason) Escalates() bool {
	return escalationReasons[r]
}

// EscalationReasons returns the escalating reasons as strings, for queries
// over recorded attempts.
func EscalationReasons() []string {
	reasons := make([]string, 0, len(escalationReasons))
	for r := range escalationReasons {
		reasons = append(reasons, string(r))
	}
	return reasons
}

// Message returns the human-readable denial message. Credential failures are
// unified into one message so the response does not disclose whether the
// username or the password was wrong.
func (r DenialReason) Message() string {
	switch r {
	case DenyInvalidUsername, DenyInvalidPassword:
		return "Invalid username or password."
	case DenyDeviceNotRegistered:
		return "This device is not registered for your branch. Register it via QR Master."
	case DenyWrongBranch:
		return "This device has not been granted to your account."
	case DenyCrossBranchDevice:
		return "This device belongs to a different branch and cannot be used here."
	case DenyDeviceBlocked:
		return "This device has been blocked. Contact your administrator."
	case DenyFingerprintMismatch:
		return "This device could not be verified. Register it again via QR Master."
	default:
		return "Login refused."
	}
}

// Decision is the terminal result of the access engine for one login attempt.
// Policy outcomes are values, never errors; only infrastructure failures leave
// the engine as errors.
type Decision struct {
	Outcome      DecisionOutcome
	Reason       DenialReason // set when Outcome == DecisionDeny
	Message      string
	User         *User   // set when Outcome == DecisionAllow
	Device       *Device // set when a registered device participated
	SessionToken string
}

// Allowed is a convenience check for the allow outcome.
func (d *Decision) Allowed() bool {
	return d.Outcome == DecisionAllow
}
