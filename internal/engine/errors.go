package engine

import "fmt"

// DeferredError reports a deferred marker whose key was absent from the
// created-resource maps at dispatch time. The operation fails without a
// server call and the failure cascades to its dependents.
type DeferredError struct {
	RowID        string
	ResourceType string
	Key          string
	Value        string
}

func (e *DeferredError) Error() string {
	return fmt.Sprintf("row %s: deferred %s %q=%q was never created in this session",
		e.RowID, e.ResourceType, e.Key, e.Value)
}
