// Package pg implements the credential, role and audit stores on
// PostgreSQL through pgx.
//
// Missing rows surface as errors matching goGuard.ErrNotFound and driver
// failures as goGuard.ErrStorageUnavailable. schema.sql lists the tables
// the store expects; migrations are owned by the host application.
package pg
