package conductor

import "github.com/xraph/conductor/id"

// ID is the primary identifier type for all Conductor entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
