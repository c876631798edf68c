package workflow

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// ActionConfig is the presentation record of a UI action token
type ActionConfig struct {
	Label                string `json:"label" mapstructure:"label"`
	Icon                 string `json:"icon" mapstructure:"icon"`
	Color                string `json:"color" mapstructure:"color"`
	Tooltip              string `json:"tooltip" mapstructure:"tooltip"`
	RequiresConfirmation bool   `json:"requires_confirmation" mapstructure:"requires_confirmation"`
	ConfirmationMessage  string `json:"confirmation_message,omitempty" mapstructure:"confirmation_message"`
}

// DefaultActionConfigs is the compiled-in presentation table
var DefaultActionConfigs = map[domainwf.Action]ActionConfig{
	domainwf.ActionApprove: {
		Label:                "Approve",
		Icon:                 "check-circle",
		Color:                "success",
		Tooltip:              "Approve and forward the application",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Approve this application?",
	},
	domainwf.ActionReject: {
		Label:                "Reject",
		Icon:                 "x-circle",
		Color:                "danger",
		Tooltip:              "Reject the application",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Reject this application? This cannot be undone.",
	},
	domainwf.ActionForward: {
		Label:   "Forward",
		Icon:    "arrow-right",
		Color:   "primary",
		Tooltip: "Forward to the next officer",
	},
	domainwf.ActionReturn: {
		Label:                "Return",
		Icon:                 "arrow-left",
		Color:                "warning",
		Tooltip:              "Return the application to the applicant",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Return this application?",
	},
	domainwf.ActionVerify: {
		Label:   "Verify",
		Icon:    "shield-check",
		Color:   "info",
		Tooltip: "Mark the documents as verified",
	},
	domainwf.ActionIssue: {
		Label:                "Issue",
		Icon:                 "file-text",
		Color:                "success",
		Tooltip:              "Issue the license or permit",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Issue the license now?",
	},
	domainwf.ActionPay: {
		Label:   "Pay",
		Icon:    "credit-card",
		Color:   "primary",
		Tooltip: "Pay the assessed fee",
	},
	domainwf.ActionTerminate: {
		Label:                "Terminate",
		Icon:                 "slash",
		Color:                "danger",
		Tooltip:              "Terminate the application",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Terminate this application?",
	},
	domainwf.ActionView: {
		Label:   "View",
		Icon:    "eye",
		Color:   "secondary",
		Tooltip: "View application details",
	},
	domainwf.ActionRequestCancellation: {
		Label:                "Request Cancellation",
		Icon:                 "x-octagon",
		Color:                "warning",
		Tooltip:              "Request cancellation of the permit",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Request cancellation of this permit?",
	},
	domainwf.ActionRequestRevalidation: {
		Label:   "Request Revalidation",
		Icon:    "refresh-cw",
		Color:   "info",
		Tooltip: "Request revalidation of the permit",
	},
	domainwf.ActionSubmitPayslip: {
		Label:   "Submit Payslip",
		Icon:    "upload",
		Color:   "primary",
		Tooltip: "Upload the fee payslip",
	},
	domainwf.ActionApprovePayslip: {
		Label:                "Approve Payslip",
		Icon:                 "check-square",
		Color:                "success",
		Tooltip:              "Accept the uploaded payslip",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Approve this payslip?",
	},
	domainwf.ActionRejectPayslip: {
		Label:                "Reject Payslip",
		Icon:                 "x-square",
		Color:                "danger",
		Tooltip:              "Reject the uploaded payslip",
		RequiresConfirmation: true,
		ConfirmationMessage:  "Reject this payslip?",
	},
}

// ActionTable resolves action tokens to presentation records
type ActionTable struct {
	configs map[domainwf.Action]ActionConfig
}

// NewActionTable builds a table from the defaults plus overrides. Override
// keys are canonicalized like any other token.
func NewActionTable(overrides map[string]ActionConfig) *ActionTable {
	configs := make(map[domainwf.Action]ActionConfig, len(DefaultActionConfigs)+len(overrides))
	for k, v := range DefaultActionConfigs {
		configs[k] = v
	}
	for k, v := range overrides {
		configs[domainwf.ParseAction(k)] = v
	}
	return &ActionTable{configs: configs}
}

// Lookup returns the config of a token. Unknown tokens get a neutral
// config labelled with the title-cased token.
func (t *ActionTable) Lookup(token string) ActionConfig {
	if cfg, ok := t.configs[domainwf.ParseAction(token)]; ok {
		return cfg
	}
	label := titleCase(token)
	return ActionConfig{
		Label:   label,
		Icon:    "circle",
		Color:   "secondary",
		Tooltip: label,
	}
}

// titleCase turns "request_site-visit" into "Request Site Visit"
func titleCase(token string) string {
	words := strings.FieldsFunc(token, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		w = strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Projector computes the action tokens a user may trigger from a stage.
// It performs no writes and no authorization.
type Projector struct {
	families *domainwf.FamilyResolver
	eval     *domainwf.Evaluator
}

// NewProjector creates a projector over the given role families
func NewProjector(families *domainwf.FamilyResolver) *Projector {
	if families == nil {
		families = domainwf.NewFamilyResolver(nil)
	}
	return &Projector{families: families, eval: domainwf.NewEvaluator(nil)}
}

// AllowedActions returns the sorted, de-duplicated action tokens of the
// transitions leaving stageID whose role matches the user's family. A role_id
// condition must match the user's role exactly. Transitions without a role
// count only when the workflow includes unscoped actions.
func (p *Projector) AllowedActions(snap *domainwf.Snapshot, stageID int64, user *entity.User) []string {
	roleName := user.RoleName()
	seen := map[string]bool{}

	for _, t := range snap.Outgoing(stageID) {
		cond := domainwf.ParseCondition(t.Condition)
		if cond.Action == "" {
			continue
		}
		switch {
		case cond.HasRoleID:
			if p.eval.RoleMatches(cond, user) != nil {
				continue
			}
		case cond.Role != "":
			if !p.families.Same(cond.Role, roleName) {
				continue
			}
		case !snap.Workflow.IncludeUnscopedActions:
			continue
		}
		seen[domainwf.ParseAction(cond.Action).String()] = true
	}

	actions := make([]string, 0, len(seen))
	for a := range seen {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}
