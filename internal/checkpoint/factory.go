package checkpoint

import "fmt"

// Store kinds accepted by NewStore
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindNone   = "none"
)

// NewStore returns an uninitialized store of the given kind. KindNone
// yields a nil store and no error.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return NewSQLiteStore(sqlitePath), nil
	case KindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s", kind)
	}
}
