package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultVariant is the sentinel variant assigned to products without a
// variant set. It matches the value the order backend expects on line items.
const DefaultVariant = "Único"

// Product is a read-only catalog entry fetched from the order backend.
// The engine never mutates products; a refresh replaces the snapshot
// wholesale.
type Product struct {
	ID          string
	Name        string
	Category    string
	Description string
	Summary     string
	RawPrice    string
	Price       float64
	Weight      float64
	Height      float64
	Width       float64
	Length      float64
	// FreeShippingRegions lists region codes for which the carrier
	// subsidy/zeroing rules apply.
	FreeShippingRegions []string
	Variants            []string
	Attributes          []string
	Image               string
	ExtraImages         []string
}

// HasVariants reports whether the shopper must pick a variant before the
// product can enter the cart.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// CartItem is one line of the cart ledger. Unit prices are normalised
// decimals; locale-formatted strings never survive past insertion.
type CartItem struct {
	Key                 string
	ProductID           string
	Variant             string
	Title               string
	UnitPrice           float64
	Quantity            int
	Image               string
	FreeShippingRegions []string
}

// ItemKey derives the composite (product, variant) cart key.
func ItemKey(productID, variant string) string {
	v := strings.TrimSpace(variant)
	if v == "" {
		v = DefaultVariant
	}
	return strings.TrimSpace(productID) + "_" + v
}

// Cart is the authoritative ledger of line items for one session.
type Cart struct {
	Items     []CartItem
	UpdatedAt time.Time
}

// Subtotal sums unit price times quantity over all items.
func (c Cart) Subtotal() float64 {
	var total float64
	for _, item := range c.Items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		if item.UnitPrice > 0 {
			total += item.UnitPrice * float64(qty)
		}
	}
	return total
}

// Fingerprint captures the cart composition so that in-flight quote
// responses can detect that they became stale before landing.
func (c Cart) Fingerprint() string {
	if len(c.Items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		parts = append(parts, fmt.Sprintf("%s:%d", item.Key, item.Quantity))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

// CarrierOption is one shipping method returned by the order backend after
// the engine applied the store pricing rules.
type CarrierOption struct {
	Name         string
	Price        float64
	ListPrice    float64
	DeadlineDays int
	Free         bool
	Discounted   bool
}

// ShippingQuote is the selected carrier option. It is valid only for the
// postal code and cart fingerprint captured at selection time.
type ShippingQuote struct {
	Service     string
	Price       float64
	PostalCode  string
	Fingerprint string
	SelectedAt  time.Time
}

// IdentificationState enumerates the customer-identification flow.
type IdentificationState string

const (
	IdentificationAwaitingConsent IdentificationState = "awaiting_consent"
	IdentificationCodeRequested   IdentificationState = "code_requested"
	IdentificationResolved        IdentificationState = "resolved"
	IdentificationManualFallback  IdentificationState = "manual_fallback"
)

// ResolutionMethod records how a profile became trusted for checkout prefill.
type ResolutionMethod string

const (
	// ResolutionImmediate marks legacy customers resolved without a code.
	ResolutionImmediate ResolutionMethod = "immediate"
	// ResolutionCode marks profiles released after one-time-code validation.
	ResolutionCode ResolutionMethod = "code"
)

// CustomerProfile carries the contact and delivery fields consumed by the
// checkout orchestrator.
type CustomerProfile struct {
	FirstName  string
	LastName   string
	TaxID      string
	Phone      string
	Email      string
	PostalCode string
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	Region     string
	Reference  string
}

// IdentificationSession tracks one pass through the identification flow.
// The profile is only trusted once State is IdentificationResolved.
type IdentificationSession struct {
	TaxID           string
	Profile         CustomerProfile
	Method          ResolutionMethod
	State           IdentificationState
	DestinationHint string
	ExpiresAt       time.Time
}

// ClientSession lets a returning shopper skip re-identification for order
// history lookups. Every successful access renews the expiry.
type ClientSession struct {
	TaxID     string
	Token     string
	ExpiresAt time.Time
}

// Active reports whether the session is still usable at the given instant.
func (s ClientSession) Active(now time.Time) bool {
	return strings.TrimSpace(s.TaxID) != "" && now.Before(s.ExpiresAt)
}

// OrderLine is one denormalised line of a pending order submission.
type OrderLine struct {
	Title     string
	Quantity  int
	UnitPrice float64
	Currency  string
}

// LogisticsSummary describes the parcel attached to an order submission.
type LogisticsSummary struct {
	Service    string
	Weight     float64
	Dimensions string
}

// PendingOrder is assembled at checkout confirmation and discarded after a
// submission attempt. It is never persisted.
type PendingOrder struct {
	ID        string
	Customer  CustomerProfile
	Lines     []OrderLine
	Logistics LogisticsSummary
	Subtotal  float64
	Shipping  float64
	Total     float64
	CreatedAt time.Time
}

// OrderRecord is one entry of a shopper's order history.
type OrderRecord struct {
	ID           string
	Status       string
	Date         string
	ItemsText    string
	Total        float64
	PaymentLink  string
	TrackingCode string
}

// CheckoutChannel selects how confirmed orders leave the engine.
type CheckoutChannel string

const (
	// ChannelGateway submits the order for a payment-redirect URL.
	ChannelGateway CheckoutChannel = "gateway"
	// ChannelMessaging hands the order off through a messaging deep link.
	ChannelMessaging CheckoutChannel = "whatsapp"
)

// StoreConfig holds the store-wide settings served by the order backend
// config operation.
type StoreConfig struct {
	StoreName       string
	WhatsAppNumber  string
	CheckoutChannel CheckoutChannel
	ShippingSubsidy float64
	Version         string
}

// Channel normalises the configured checkout channel, defaulting to the
// payment gateway.
func (c StoreConfig) Channel() CheckoutChannel {
	if strings.EqualFold(strings.TrimSpace(string(c.CheckoutChannel)), string(ChannelMessaging)) {
		return ChannelMessaging
	}
	return ChannelGateway
}
