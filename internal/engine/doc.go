// Package engine runs builds.
//
// An Engine owns what outlives a single build: the content cache, the
// build ledger and the configuration hash. Each call to BuildGraph,
// BuildTree or BuildSource gets a fresh source chain and module builder,
// so a rebuild in watch mode sees edited sources while unchanged modules
// and bundles come straight from the cache.
//
// Builds are numbered by a Sequence and identified by time-sortable
// UUIDv7 strings. When a ledger is configured every build leaves a row
// recording its mode, roots and outcome.
package engine
