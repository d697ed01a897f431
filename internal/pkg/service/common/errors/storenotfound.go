package errors

import (
	"fmt"
)

type StoreNotFoundError struct {
	database string
	store    string
}

func NewStoreNotFoundError(database, store string) StoreNotFoundError {
	return StoreNotFoundError{database: database, store: store}
}

func (StoreNotFoundError) ErrorName() string {
	return CodeStoreNotFound
}

func (e StoreNotFoundError) Database() string {
	return e.database
}

func (e StoreNotFoundError) Store() string {
	return e.store
}

func (e StoreNotFoundError) Error() string {
	return fmt.Sprintf(`store "%s" not found in database "%s"`, e.store, e.database)
}

func (e StoreNotFoundError) ErrorUserMessage() string {
	return fmt.Sprintf(`Store "%s" not found in the database "%s".`, e.store, e.database)
}
