package addresses

import "time"

// Address is a collection site visited on a given day. The (name, date)
// pair is unique: revisiting a site on another day is a new address row.
type Address struct {
	ID        int64
	ProjectID int64
	Name      string
	Date      time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAddressInput carries the fields for a new address.
type CreateAddressInput struct {
	ProjectID int64
	Name      string
	Date      time.Time
}
