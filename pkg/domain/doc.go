// Package domain defines the entity value type, entity metadata, the
// persister contract shared by every storage backend, and the error taxonomy
// of the mapping layer.
package domain
