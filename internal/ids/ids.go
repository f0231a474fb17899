package ids

import "github.com/segmentio/ksuid"

// New returns a K-sortable unique identifier suitable for primary keys
// and object names.
func New() string {
	return ksuid.New().String()
}
