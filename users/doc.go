/*
Package users provides the user entity, the durable Store contract, and an
in-memory caching layer over it.

The packages and services in this repo read and write users exclusively
through the [Store] interface. [DBStore] is the backend of record, persisting
to sqlite or postgresql via gorm. [CachedStore] wraps any Store with a
write-through, read-through cache of value snapshots; it is what request
handlers are expected to hold. [MockStore] is a memory-only implementation
with operation counters, for use in tests.
*/
package users
