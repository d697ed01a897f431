package errors

import (
	"fmt"
)

// EmptyDatabaseError guards against importing into a database that has never been initialized.
type EmptyDatabaseError struct {
	database string
}

func NewEmptyDatabaseError(database string) EmptyDatabaseError {
	return EmptyDatabaseError{database: database}
}

func (EmptyDatabaseError) ErrorName() string {
	return CodeEmptyDB
}

func (e EmptyDatabaseError) Error() string {
	return fmt.Sprintf(`database "%s" has no stores`, e.database)
}

func (e EmptyDatabaseError) ErrorUserMessage() string {
	return fmt.Sprintf(`Database "%s" has no stores, create its schema before the import.`, e.database)
}
