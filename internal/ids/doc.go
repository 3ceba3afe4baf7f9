// Package ids inspects inbound requests before any business logic runs.
//
// The pipeline is: whitelist, ban check, method allow-list, mandatory
// headers, XSS/SQLi signature scan, brute-force limiter. Every rejection
// except the ban itself records a strike against the source IP; enough
// strikes ban the IP for the configured duration.
package ids
