package model

// Action is the mutation type carried by a broadcast event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MutationEvent is the one-shot notification published after a committed
// write. Create and update events carry the full entity; delete events carry
// only the entity ID. Events are not persisted: a viewer that is not
// connected when the event fires never receives it.
type MutationEvent struct {
	Kind     EntityKind `json:"entityKind"`
	Action   Action     `json:"action"`
	Entity   *Entity    `json:"entity,omitempty"`
	EntityID string     `json:"entityId,omitempty"`
}

// TargetID returns the ID the event applies to, regardless of action.
func (ev MutationEvent) TargetID() string {
	if ev.Entity != nil {
		return ev.Entity.ID
	}
	return ev.EntityID
}
