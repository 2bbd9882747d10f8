// Package model defines the domain entities for a multi-day golf
// competition: the trip aggregate and its roster, sessions and matches,
// hole results, the append-only scoring event log, and the sync queue
// items that track pending remote mutations.
//
// Entities are identified by globally unique string ids (UUIDs) so they
// can be created offline on any device without coordination. Ownership is
// strictly hierarchical: Trip -> Session -> Match -> HoleResult and
// ScoringEvent. Every child row carries its owning trip id so bulk
// cascade deletes and queue purges can be scoped to a single trip.
package model
