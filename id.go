package children

import "github.com/google/uuid"

// ID identifies a broadcast endpoint -- a Children group or one of its
// elements -- uniquely within the process. Ids never alias and are never
// recycled.
type ID struct {
	u uuid.UUID
}

func newID() ID {
	return ID{u: uuid.New()}
}

func (id ID) String() string {
	return id.u.String()
}

// IsZero reports whether id is the unset zero value, as opposed to an
// id minted by newID.
func (id ID) IsZero() bool {
	return id.u == uuid.Nil
}
