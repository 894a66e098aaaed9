// Package source turns module identifiers into source text.
//
// A Chain holds an ordered list of providers. Later registrations take
// priority, so a specific override can be layered over a general lookup. A
// provider that fails or panics is skipped, and when every provider declines
// the chain substitutes a stub module that throws if it is ever executed.
//
// Modules may declare their own identifier with an in-source directive such
// as
//
//	/** @providesModule WidgetShare */
//
// CanonicalID reports that identifier, and ScanDirectives finds every
// declaration under a directory so requests for the declared name can be
// routed to the right file.
package source
