// Package types holds the shared data model of the data logger: connection
// and tag configuration, acquired values with quality, alarm states and the
// per-tag baseline accumulator.
//
// The package has no dependencies on the session, acquisition or analytics
// packages so every layer can exchange these values without import cycles.
package types
