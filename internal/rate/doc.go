// Package rate implements the per-IP brute-force limiter.
//
// Each source IP gets a free retry budget; past it, every request must wait
// a Fibonacci-growing delay between MinWait and MaxWait after the last
// accepted one. State lives in a Redis hash at "<prefix>rl:<hash>" where
// hash is derived from the IP and the profile salt, so the counter can be
// cleared given only the hash recorded in the IP's rate-limit marker.
package rate
