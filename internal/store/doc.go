// Package store defines the persistence contract for export run bookkeeping.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
