// Package internaldefs holds the metric names, help strings and histogram
// bounds used by the exporters.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
