// Package store is the persistence gateway: durable whole-document
// access to the named record collections (campaigns, groups, statistics,
// settings).
//
// Collections carry no partial-update semantics; callers read-modify-write
// the whole document. Two drivers exist: "file" (default, one JSON file
// per collection) and "sqlite" (optional, build tag `sqlite`).
package store
