// Package idempotency makes marketplace side effects happen at most once per
// logical intent by keying them on content hashes.
//
// Photo uploads are deduplicated through a persisted hash-to-photo-id cache.
// Listing payloads are reduced to a canonical fingerprint (excluded fields
// dropped, strings NFC-normalized, numbers canonicalized, CBOR core
// deterministic encoding) so that an approved dry run can be compared with
// the payload rebuilt at publish time. Any difference is drift.
//
// Hashes are BLAKE3 in keyed mode with a per-purpose domain key, so a photo
// hash can never collide with a payload hash of the same bytes.
package idempotency
