/*
Package store persists templates in SQLite with automatic revision history
and per-template render statistics.

Every Save of changed content archives the previous revision, so any two
versions of a template can be retrieved or diffed later. RecordRender
accumulates counters, durations, and byte counts per template, tagging each
render with a unique ID. The full store can be exported to and imported from
JSON, or dumped as plain template files to a directory for use with a
filesystem-based template loader.

SetupSchema must be run on a database before a Store is created for it. The
package is driver-agnostic and works with any database/sql SQLite driver.
*/
package store
