package users

import (
	"github.com/google/uuid"
)

// User is a single directory entry. Age is optional and serializes as JSON
// null when unset.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Age   *int16    `gorm:"type:smallint" json:"age"`
}

// CreateUserParams are the caller-supplied fields for a new user. The store
// assigns the ID.
type CreateUserParams struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   *int16 `json:"age"`
}

// UpdateUserParams is a partial update. Fields left nil are not changed; for
// Name and Email an empty string is also treated as "leave unchanged".
type UpdateUserParams struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Age   *int16  `json:"age"`
}

// clone returns a copy of u that shares no pointers with the original, so
// cached entries can never be mutated through a returned value.
func (u User) clone() User {
	if u.Age != nil {
		age := *u.Age
		u.Age = &age
	}
	return u
}
