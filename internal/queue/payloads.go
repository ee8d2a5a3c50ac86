package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Type names a command variant.
type Type string

const (
	TypePublish     Type = "publish"
	TypePriceUpdate Type = "price_update"
	TypeWithdraw    Type = "withdraw"
)

// Payload is implemented by every command variant.
type Payload interface {
	CommandType() Type
}

// PublishPayload requests a dry run or a real publish of a source product.
// A real publish may name the dry-run listing it was approved from.
type PublishPayload struct {
	SourceProductID    string `json:"source_product_id" validate:"required"`
	DryRun             bool   `json:"dry_run"`
	ApprovedFromDryRun string `json:"approved_from_dryrun,omitempty"`
}

func (PublishPayload) CommandType() Type { return TypePublish }

// PriceUpdatePayload changes the price of a live listing.
type PriceUpdatePayload struct {
	ListingID string  `json:"listing_id" validate:"required"`
	NewPrice  float64 `json:"new_price" validate:"gt=0"`
}

func (PriceUpdatePayload) CommandType() Type { return TypePriceUpdate }

// WithdrawPayload removes a listing from the marketplace.
type WithdrawPayload struct {
	ListingID string `json:"listing_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

func (WithdrawPayload) CommandType() Type { return TypeWithdraw }

// ErrInvalidPayload marks malformed command payloads.
var ErrInvalidPayload = errors.New("invalid command payload")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidatePayload checks struct tags plus cross-field rules.
func ValidatePayload(p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}
	if err := payloadValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, p.CommandType(), strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, p.CommandType(), err)
	}
	if publish, ok := p.(PublishPayload); ok && publish.DryRun && publish.ApprovedFromDryRun != "" {
		return fmt.Errorf("%w: publish: approved_from_dryrun requires dry_run=false", ErrInvalidPayload)
	}
	return nil
}

// DecodePayload parses and validates a stored payload for the given type.
func DecodePayload(t Type, data []byte) (Payload, error) {
	var (
		payload Payload
		err     error
	)
	switch t {
	case TypePublish:
		var p PublishPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case TypePriceUpdate:
		var p PriceUpdatePayload
		err = json.Unmarshal(data, &p)
		payload = p
	case TypeWithdraw:
		var p WithdrawPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", ErrInvalidPayload, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidPayload, t, err)
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
