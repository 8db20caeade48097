// Package domain holds the value types shared by the intake pipeline:
// inbound emails, processing records, extracted documents and facts, match
// results and the generated tasks, calendar events and notes.
//
// Nothing here talks to a database, the network or another internal
// package. Struct tags describe the JSON and column names; the few methods
// are pure helpers on the values themselves.
package domain
