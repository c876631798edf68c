package workflow

import "strings"

// Action is a UI action token carried by transition conditions
type Action string

const (
	ActionApprove             Action = "APPROVE"
	ActionReject              Action = "REJECT"
	ActionForward             Action = "FORWARD"
	ActionReturn              Action = "RETURN"
	ActionVerify              Action = "VERIFY"
	ActionIssue               Action = "ISSUE"
	ActionPay                 Action = "PAY"
	ActionTerminate           Action = "TERMINATE"
	ActionView                Action = "VIEW"
	ActionRequestCancellation Action = "REQUEST_CANCELLATION"
	ActionRequestRevalidation Action = "REQUEST_REVALIDATION"
	ActionSubmitPayslip       Action = "SUBMITPAYSLIP"
	ActionApprovePayslip      Action = "APPROVEPAYSLIP"
	ActionRejectPayslip       Action = "REJECTPAYSLIP"
)

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// ParseAction canonicalizes a raw token: trimmed and upper-cased
func ParseAction(raw string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(raw)))
}

var submitActions = map[string]bool{
	"submit":    true,
	"submitted": true,
	"create":    true,
	"apply":     true,
}

// IsSubmitAction reports whether a raw action token is submit-style
func IsSubmitAction(raw string) bool {
	return submitActions[Normalize(raw)]
}
