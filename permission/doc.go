// Package permission holds the route policy registry and role storage used
// by authorization checks.
//
// Policies are keyed by (method, route template), never the resolved path,
// so a path parameter cannot steer a request onto another policy. The
// registry is filled at startup and frozen before serving.
package permission
