package types

// Order enumeration for sorting
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

func (o Order) Desc() bool {
	return o == OrderDesc
}

// Valid checks if an order is valid
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// SortField enumeration for group listing
type SortField string

const (
	SortFirstSeenGroup SortField = "first_seen_group"
	SortLastSeenGroup  SortField = "last_seen_group"
)

// Valid checks if a sort field is valid
func (s SortField) Valid() bool {
	return s == SortFirstSeenGroup || s == SortLastSeenGroup
}
