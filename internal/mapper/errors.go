package mapper

import (
	"fmt"
	"strings"
)

// MissingRequiredFieldsError reports every required canonical field absent
// after mapping, not just the first.
type MissingRequiredFieldsError struct {
	SourceName string
	Missing    []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("mapper: source %q: missing required fields: %s",
		e.SourceName, strings.Join(e.Missing, ", "))
}

// UnknownCategoryError reports a record whose raw category values resolved to
// no entry in the source's category table (and the table has no wildcard).
type UnknownCategoryError struct {
	SourceName string
	RawValues  []string
}

func (e *UnknownCategoryError) Error() string {
	if len(e.RawValues) == 0 {
		return fmt.Sprintf("mapper: source %q: no category field present in raw record", e.SourceName)
	}
	return fmt.Sprintf("mapper: source %q: no category mapping for %s",
		e.SourceName, strings.Join(e.RawValues, ", "))
}
