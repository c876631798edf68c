package workflow

import (
	"regexp"
	"strings"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// StageKind classifies a stage for forwarding and objection rules
type StageKind string

const (
	KindNormal          StageKind = "normal"
	KindObjection       StageKind = "objection"
	KindAwaitingPayment StageKind = "awaiting_payment"
	KindTerminal        StageKind = "terminal"
)

var validKinds = map[StageKind]bool{
	KindNormal:          true,
	KindObjection:       true,
	KindAwaitingPayment: true,
	KindTerminal:        true,
}

// IsValid returns true if the kind is one of the defined constants
func (k StageKind) IsValid() bool {
	return validKinds[k]
}

// String returns the string representation of the kind
func (k StageKind) String() string {
	return string(k)
}

// ForwardPolicy decides who receives an application entering a stage
type ForwardPolicy string

const (
	ForwardToApplicant ForwardPolicy = "applicant"
	ForwardToProcessor ForwardPolicy = "processor"
)

// IsValid returns true if the policy is one of the defined constants
func (p ForwardPolicy) IsValid() bool {
	return p == ForwardToApplicant || p == ForwardToProcessor
}

const (
	objectionMarker      = "objection"
	objectionSuffix      = "_" + objectionMarker
	awaitingPaymentStage = "awaiting_payment"
)

var officerStagePattern = regexp.MustCompile(`^level_[0-9]+$`)

// KindOf returns the effective kind of a stage. An explicit kind wins;
// otherwise a name containing "objection" or "awaiting_payment" decides.
func KindOf(s *entity.Stage) StageKind {
	if k := StageKind(s.Kind); k.IsValid() {
		return k
	}
	switch {
	case strings.Contains(s.Name, objectionMarker):
		return KindObjection
	case strings.Contains(s.Name, awaitingPaymentStage):
		return KindAwaitingPayment
	case s.IsFinal:
		return KindTerminal
	default:
		return KindNormal
	}
}

// ForwardPolicyOf returns who receives an application entering the stage
func ForwardPolicyOf(s *entity.Stage) ForwardPolicy {
	if p := ForwardPolicy(s.ForwardTo); p.IsValid() {
		return p
	}
	switch KindOf(s) {
	case KindObjection, KindAwaitingPayment:
		return ForwardToApplicant
	default:
		return ForwardToProcessor
	}
}

// IsOfficerStage reports whether the stage belongs to the level_N family
func IsOfficerStage(s *entity.Stage) bool {
	return officerStagePattern.MatchString(s.Name)
}

// ObjectionStageName returns the name of the objection stage paired with an officer stage
func ObjectionStageName(officerStage string) string {
	return officerStage + objectionSuffix
}
