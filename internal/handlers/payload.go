package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"launchlock/internal/catalog"
	"launchlock/internal/gatekeeper"
	"launchlock/internal/idempotency"
	"launchlock/internal/services/marketplace"
)

// buildPayload assembles the listing document from a product and the values
// the gates resolved for it. Photo ids are attached later, after upload.
func buildPayload(p *catalog.Product, a gatekeeper.Approval) marketplace.Payload {
	return marketplace.Payload{
		SKU:         sku(p),
		Title:       a.Title,
		Description: a.Description,
		Price:       a.SellPrice,
		Quantity:    p.Stock,
		CategoryID:  a.CategoryID,
		Shipping:    p.Shipping,
	}
}

func sku(p *catalog.Product) string {
	supplier := strings.ToUpper(strings.TrimSpace(p.Supplier))
	ref := strings.TrimSpace(p.SourceRef)
	if ref == "" {
		ref = p.ID
	}
	return supplier + "-" + ref
}

// encodePayload returns the payload JSON and its fingerprint.
func encodePayload(payload marketplace.Payload) (string, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("encode listing payload: %w", err)
	}
	hash, err := idempotency.FingerprintOf(payload)
	if err != nil {
		return "", "", fmt.Errorf("fingerprint listing payload: %w", err)
	}
	return string(data), hash, nil
}
