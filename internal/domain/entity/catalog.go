package entity

import "time"

// Workflow is a named state machine definition
type Workflow struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// IncludeUnscopedActions lets transitions without a role condition
	// contribute to every user's allowed actions
	IncludeUnscopedActions bool      `json:"include_unscoped_actions"`
	CreatedAt              time.Time `json:"created_at"`
}

// Stage is a node of a workflow
type Stage struct {
	ID          int64  `json:"id"`
	WorkflowID  int64  `json:"workflow_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsInitial   bool   `json:"is_initial"`
	IsFinal     bool   `json:"is_final"`
	// Kind and ForwardTo are optional; empty values fall back to the
	// stage naming convention
	Kind      string `json:"kind,omitempty"`
	ForwardTo string `json:"forward_to,omitempty"`
}

// Transition is a directed edge between two stages of the same workflow.
// Condition holds the raw guard map as stored.
type Transition struct {
	ID          int64          `json:"id"`
	WorkflowID  int64          `json:"workflow_id"`
	FromStageID int64          `json:"from_stage_id"`
	ToStageID   int64          `json:"to_stage_id"`
	Condition   map[string]any `json:"condition"`
}

// StagePermission declares that a role may process a stage
type StagePermission struct {
	ID         int64 `json:"id"`
	StageID    int64 `json:"stage_id"`
	RoleID     int64 `json:"role_id"`
	CanProcess bool  `json:"can_process"`
}

// Role is an organisational role referenced by permissions and conditions
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// Precedence breaks ties between processor roles; lower wins
	Precedence         int  `json:"role_precedence"`
	CanManageWorkflows bool `json:"can_manage_workflows"`
}
