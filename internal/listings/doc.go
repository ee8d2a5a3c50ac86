// Package listings mirrors marketplace listings and their drafts.
//
// A Listing tracks desired and actual state and price side by side. Publish
// commands write a listing row in state "publishing" before calling the
// marketplace (the intent row) so a re-executed command can tell whether an
// earlier attempt may already have created the listing. ListingDraft holds
// the exact payload proposed by one publish command, its fingerprint, and
// the validation outcome operators inspect when a command is blocked.
package listings
