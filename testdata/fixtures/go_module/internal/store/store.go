package store

// Item is a stored record.
type Item struct {
	ID   string
	Name string
}

// Get returns the item with id.
func Get(id string) *Item {
	return &Item{ID: id}
}
