// Package gatekeeper implements LaunchLock, the multi-gate validator every
// product must pass before a listing may be published.
//
// Gates run in order and the first failure wins:
//
//   - structural: source reference, title, cost, enrichment, images, category
//   - trust: external trust score against the configured minimum
//   - policy: external content policy, skipped only for configured trusted sources
//   - margin: priced sell price against cost and the minimum margin
//
// A failure is a *services.Failure carrying the gate name, a code, and an
// operator-readable message. Collaborator errors fail closed.
package gatekeeper
