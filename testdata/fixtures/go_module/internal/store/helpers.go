package store

func normalize(id string) string {
	return id
}
