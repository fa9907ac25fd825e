// Package tools defines the capability contract between the execution
// engine and the search backends: tool descriptors, call/result types,
// the executor interface, and tenant-scoped tool filtering.
package tools
