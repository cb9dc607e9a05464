package core

// StorageError exposes the storage error translation to external tests.
var StorageError = storageError
