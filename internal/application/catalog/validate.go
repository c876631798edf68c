package catalog

import (
	"fmt"
	"strings"

	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Problem is one defect found in a workflow definition
type Problem struct {
	Workflow string `json:"workflow"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message"`
}

func (p Problem) String() string {
	if p.Stage == "" {
		return fmt.Sprintf("%s: %s", p.Workflow, p.Message)
	}
	return fmt.Sprintf("%s/%s: %s", p.Workflow, p.Stage, p.Message)
}

// Validate reports the defects that would surface as Misconfigured at run
// time: a missing or repeated initial stage, edges leaving the workflow,
// reachable open stages nobody can process, and objection stages without
// their officer stage.
func Validate(snap *domainwf.Snapshot) []Problem {
	name := snap.Workflow.Name
	var problems []Problem
	add := func(stage, format string, args ...any) {
		problems = append(problems, Problem{Workflow: name, Stage: stage, Message: fmt.Sprintf(format, args...)})
	}

	var initial []string
	for _, st := range snap.Stages {
		if st.IsInitial {
			initial = append(initial, st.Name)
		}
	}
	switch len(initial) {
	case 0:
		add("", "no initial stage")
	case 1:
	default:
		add("", "%d initial stages: %s", len(initial), strings.Join(initial, ", "))
	}

	for _, t := range snap.Transitions {
		_, fromOK := snap.Stage(t.FromStageID)
		_, toOK := snap.Stage(t.ToStageID)
		if t.WorkflowID != snap.Workflow.ID || !fromOK || !toOK {
			add("", "transition %d (%d -> %d) leaves the workflow", t.ID, t.FromStageID, t.ToStageID)
		}
	}

	reachable := map[int64]bool{}
	if start, ok := snap.InitialStage(); ok {
		queue := []int64{start.ID}
		reachable[start.ID] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, t := range snap.Outgoing(id) {
				if !reachable[t.ToStageID] {
					reachable[t.ToStageID] = true
					queue = append(queue, t.ToStageID)
				}
			}
		}
	}

	for i := range snap.Stages {
		st := &snap.Stages[i]
		kind := domainwf.KindOf(st)

		if reachable[st.ID] && !st.IsInitial && !st.IsFinal && kind != domainwf.KindTerminal && !snap.HasProcessor(st.ID) {
			add(st.Name, "reachable stage has no processor role")
		}
		if kind == domainwf.KindObjection {
			origin := strings.TrimSuffix(st.Name, "_objection")
			if origin == st.Name {
				continue
			}
			if _, ok := snap.StageByName(origin); !ok {
				add(st.Name, "objection stage has no originating stage %q", origin)
			}
		}
	}

	return problems
}
