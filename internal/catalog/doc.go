// Package catalog persists scraped source products and exposes the image
// files that belong to them.
//
// Each upsert recomputes the product's snapshot hash from its content fields
// (see idempotency.Fingerprint), so drift between an approved dry run and the
// current source record is a plain string comparison. RefreshedAt records the
// last time the supplier data was observed and drives staleness guardrails.
package catalog
