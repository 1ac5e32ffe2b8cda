// Package model defines the core value types shared across OrionDB:
// vector identifiers, the database config, stored records and query
// results.
package model
