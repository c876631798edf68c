package event

// Type identifies the type of domain event
type Type string

const (
	TypeApplicationCreated Type = "application.created"
	TypeSubmitted          Type = "application.submitted"
	TypeStageChanged       Type = "application.stage_changed"
	TypeObjectionRaised    Type = "application.objection_raised"
	TypeObjectionsResolved Type = "application.objections_resolved"
	TypeApplicationDeleted Type = "application.deleted"
	TypeCatalogChanged     Type = "catalog.changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApplicationCreated,
		TypeSubmitted,
		TypeStageChanged,
		TypeObjectionRaised,
		TypeObjectionsResolved,
		TypeApplicationDeleted,
		TypeCatalogChanged:
		return true
	default:
		return false
	}
}
