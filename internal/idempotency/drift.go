package idempotency

import "launchlock/internal/services"

// CheckDrift compares the source snapshot hash approved at dry-run time with
// the current one.
func CheckDrift(approvedSnapshot, currentSnapshot string) error {
	if approvedSnapshot == currentSnapshot {
		return nil
	}
	return services.PolicyFailure(services.CodeDryRunDriftDetected,
		"source snapshot changed since dry run (approved %s, current %s)", short(approvedSnapshot), short(currentSnapshot))
}

// CheckPayloadDrift compares the approved payload fingerprint with the one
// rebuilt immediately before publishing.
func CheckPayloadDrift(approvedPayloadHash, rebuiltPayloadHash string) error {
	if approvedPayloadHash == rebuiltPayloadHash {
		return nil
	}
	return services.PolicyFailure(services.CodeDryRunDriftDetected,
		"listing payload changed since dry run (approved %s, rebuilt %s)", short(approvedPayloadHash), short(rebuiltPayloadHash))
}

func short(hash string) string {
	if hash == "" {
		return "<none>"
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
