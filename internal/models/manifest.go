package models

import "fmt"

// Operation is the change kind the remote service reports for an event.
type Operation string

const (
	OperationAdd    Operation = "add"
	OperationModify Operation = "modify"
	OperationRemove Operation = "remove"
)

// ParseOperation validates a remote operation tag.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OperationAdd, OperationModify, OperationRemove:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// ManifestEntry is one (id, version, operation) triple of the version manifest.
type ManifestEntry struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Operation Operation `json:"operation"`
}
