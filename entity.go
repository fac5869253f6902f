package conductor

import "time"

// Entity carries the bookkeeping fields shared by every Conductor entity:
// creation/update timestamps and an optional soft-delete marker. A deleted
// entity is excluded from all normal queries but retained for audit.
type Entity struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Deleted reports whether the entity has been soft-deleted.
func (e *Entity) Deleted() bool {
	return e.DeletedAt != nil
}

// MarkDeleted stamps the soft-delete marker. Calling it again is a no-op.
func (e *Entity) MarkDeleted() {
	if e.DeletedAt == nil {
		now := time.Now().UTC()
		e.DeletedAt = &now
		e.UpdatedAt = now
	}
}
