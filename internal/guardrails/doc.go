// Package guardrails applies operational policy before any
// marketplace-mutating command runs.
//
// Checks run in a fixed order and the first failure wins: store mode,
// publishing switches, source freshness, dry-run drift, daily quota, the
// per-minute throttle, and the account balance preflight. Every failure is a
// policy-class *services.Failure, so the worker parks the command in
// human_required instead of retrying it. The per-minute limit is the one
// exception: it delays the command and never fails it.
//
// Collaborator errors fail closed. An unreachable balance endpoint blocks the
// publish with BALANCE_CHECK_FAILED.
package guardrails
