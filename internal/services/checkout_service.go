package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/jobs"
	"github.com/lojafacil/engine/internal/platform/requestctx"
	"github.com/lojafacil/engine/internal/repositories"
)

// Per-item weight assumed on the logistics summary attached to the order
// payload, matching what the backend expects there.
const logisticsUnitWeight = 0.9

const defaultCurrency = "BRL"

var (
	errCheckoutRepositoryRequired = errors.New("checkout service: repository is required")
	errCheckoutShippingRequired   = errors.New("checkout service: shipping is required")
	errCheckoutConfigRequired     = errors.New("checkout service: config provider is required")
	errCheckoutBackendRequired    = errors.New("checkout service: backend is required")
)

// ErrCheckoutEmptyCart indicates there is nothing to submit.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutQuoteRequired indicates no shipping quote is selected;
// submission stays blocked until one is.
var ErrCheckoutQuoteRequired = errors.New("checkout service: shipping quote required")

// ErrPostalCodeMismatch indicates the checkout address diverges from the
// postal code the quote was computed for.
var ErrPostalCodeMismatch = errors.New("checkout service: postal code differs from quoted destination")

// ErrProfileIncomplete indicates a required profile field is empty.
var ErrProfileIncomplete = errors.New("checkout service: profile incomplete")

// ErrCheckoutUnavailable indicates the session store cannot fulfil the request.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the orchestrator dependencies.
type CheckoutServiceDeps struct {
	Sessions    repositories.SessionStateRepository
	Shipping    *ShippingService
	Config      ConfigProvider
	Backend     OrderBackend
	Publisher   OrderPublisher
	Clock       func() time.Time
	IDGenerator func() string
}

// CheckoutService reconciles the cart, the selected quote and the customer
// profile into one submission, dispatched through the configured channel.
type CheckoutService struct {
	sessions  repositories.SessionStateRepository
	shipping  *ShippingService
	config    ConfigProvider
	backend   OrderBackend
	publisher OrderPublisher
	now       func() time.Time
	newID     func() string
}

// NewCheckoutService validates deps and builds the service.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.Sessions == nil {
		return nil, errCheckoutRepositoryRequired
	}
	if deps.Shipping == nil {
		return nil, errCheckoutShippingRequired
	}
	if deps.Config == nil {
		return nil, errCheckoutConfigRequired
	}
	if deps.Backend == nil {
		return nil, errCheckoutBackendRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &CheckoutService{
		sessions:  deps.Sessions,
		shipping:  deps.Shipping,
		config:    deps.Config,
		backend:   deps.Backend,
		publisher: deps.Publisher,
		now:       clock,
		newID:     idGen,
	}, nil
}

// Summary is the confirmation view computed from the live cart and the
// selected quote, not from a frozen order.
type Summary struct {
	Subtotal float64
	Shipping float64
	Total    float64
	Service  string
}

// Confirm computes the totals the shopper approves before submission.
func (s *CheckoutService) Confirm(ctx context.Context, sessionID string) (Summary, error) {
	cart, err := s.sessions.Cart(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return Summary{}, ErrCheckoutUnavailable
	}
	if len(cart.Items) == 0 {
		return Summary{}, ErrCheckoutEmptyCart
	}

	quote, err := s.shipping.Selected(ctx, sessionID)
	if err != nil {
		return Summary{}, translateQuoteError(err)
	}

	subtotal := cart.Subtotal()
	return Summary{
		Subtotal: subtotal,
		Shipping: quote.Price,
		Total:    subtotal + quote.Price,
		Service:  quote.Service,
	}, nil
}

// Assemble builds the pending order from the cart, the selected quote and
// the profile. The order is returned, never persisted: it lives for one
// submission attempt.
func (s *CheckoutService) Assemble(ctx context.Context, sessionID string, profile domain.CustomerProfile) (domain.PendingOrder, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.PendingOrder{}, ErrCheckoutUnavailable
	}

	if err := validateProfile(profile); err != nil {
		return domain.PendingOrder{}, err
	}

	cart, err := s.sessions.Cart(ctx, sid)
	if err != nil {
		return domain.PendingOrder{}, ErrCheckoutUnavailable
	}
	if len(cart.Items) == 0 {
		return domain.PendingOrder{}, ErrCheckoutEmptyCart
	}

	quote, err := s.shipping.Selected(ctx, sid)
	if err != nil {
		return domain.PendingOrder{}, translateQuoteError(err)
	}

	profileCode, err := address.NormalizePostalCode(profile.PostalCode)
	if err != nil || profileCode != quote.PostalCode {
		return domain.PendingOrder{}, ErrPostalCodeMismatch
	}
	profile.PostalCode = profileCode

	lines := make([]domain.OrderLine, 0, len(cart.Items)+1)
	var itemCount int
	for _, item := range cart.Items {
		qty := safeQuantity(item.Quantity)
		lines = append(lines, domain.OrderLine{
			Title:     lineTitle(item),
			Quantity:  qty,
			UnitPrice: safePrice(item.UnitPrice),
			Currency:  defaultCurrency,
		})
		itemCount += qty
	}
	if quote.Price > 0 {
		lines = append(lines, domain.OrderLine{
			Title:     "Frete (" + orFallback(quote.Service, "Serviço") + ")",
			Quantity:  1,
			UnitPrice: safePrice(quote.Price),
			Currency:  defaultCurrency,
		})
	}

	subtotal := cart.Subtotal()
	return domain.PendingOrder{
		ID:       s.newID(),
		Customer: profile,
		Lines:    lines,
		Logistics: domain.LogisticsSummary{
			Service:    orFallback(quote.Service, "N/I"),
			Weight:     float64(itemCount) * logisticsUnitWeight,
			Dimensions: "Calculado via Carrinho",
		},
		Subtotal:  subtotal,
		Shipping:  quote.Price,
		Total:     subtotal + quote.Price,
		CreatedAt: s.now().UTC(),
	}, nil
}

// SubmitResult is the dispatch outcome.
type SubmitResult struct {
	Channel domain.CheckoutChannel
	// RedirectURL is the payment URL on the gateway channel or the
	// messaging deep link otherwise.
	RedirectURL string
	OrderID     string
	// BackendID is the bookkeeping identifier on the messaging channel,
	// possibly empty when registration was skipped or failed.
	BackendID string
}

// Submit assembles and dispatches the order through the configured
// channel. On the messaging channel the cart and quote are cleared
// unconditionally; on the gateway channel a failed payment creation
// leaves both intact so the shopper can retry.
func (s *CheckoutService) Submit(ctx context.Context, sessionID string, profile domain.CustomerProfile, returnTo string) (SubmitResult, error) {
	order, err := s.Assemble(ctx, sessionID, profile)
	if err != nil {
		return SubmitResult{}, err
	}

	config, err := s.config.Config(ctx)
	if err != nil {
		return SubmitResult{}, ErrCheckoutUnavailable
	}

	if config.Channel() == domain.ChannelMessaging {
		return s.submitMessaging(ctx, sessionID, order, config)
	}
	return s.submitGateway(ctx, sessionID, order, returnTo)
}

// submitMessaging builds the human-readable summary and the deep link.
// Backend bookkeeping is best effort: its failure never blocks the
// handoff.
func (s *CheckoutService) submitMessaging(ctx context.Context, sessionID string, order domain.PendingOrder, config domain.StoreConfig) (SubmitResult, error) {
	backendID, err := s.backend.RecordMessagingOrder(ctx, order)
	if err != nil {
		requestctx.Logger(ctx).Warn("messaging order not registered", zap.Error(err))
	}

	text := messagingOrderText(order, config)
	number := digitsOnly(config.WhatsAppNumber)
	link := "https://wa.me/" + number + "?text=" + url.QueryEscape(text)

	s.publishRecorded(ctx, order, backendID, domain.ChannelMessaging)
	s.clearSession(ctx, sessionID)

	return SubmitResult{
		Channel:     domain.ChannelMessaging,
		RedirectURL: link,
		OrderID:     order.ID,
		BackendID:   backendID,
	}, nil
}

// submitGateway posts the order for a payment-redirect URL. The cart is
// left untouched until the redirect is received, and kept on failure so
// submission can be retried.
func (s *CheckoutService) submitGateway(ctx context.Context, sessionID string, order domain.PendingOrder, returnTo string) (SubmitResult, error) {
	link, err := s.backend.CreatePayment(ctx, order, returnTo)
	if err != nil {
		return SubmitResult{}, err
	}

	s.publishRecorded(ctx, order, "", domain.ChannelGateway)

	return SubmitResult{
		Channel:     domain.ChannelGateway,
		RedirectURL: link,
		OrderID:     order.ID,
	}, nil
}

func (s *CheckoutService) publishRecorded(ctx context.Context, order domain.PendingOrder, backendID string, channel domain.CheckoutChannel) {
	if s.publisher == nil {
		return
	}
	msg := jobs.OrderRecordedMessage{
		OrderID:   order.ID,
		BackendID: backendID,
		Channel:   string(channel),
		TaxID:     order.Customer.TaxID,
		Subtotal:  order.Subtotal,
		Shipping:  order.Shipping,
		Total:     order.Total,
		Service:   order.Logistics.Service,
		CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.publisher.PublishOrderRecorded(ctx, msg); err != nil {
		requestctx.Logger(ctx).Warn("order event not published", zap.Error(err))
	}
}

func (s *CheckoutService) clearSession(ctx context.Context, sessionID string) {
	if err := s.sessions.ClearCart(ctx, sessionID); err != nil {
		requestctx.Logger(ctx).Warn("cart not cleared after handoff", zap.Error(err))
	}
	if err := s.sessions.ClearQuote(ctx, sessionID); err != nil {
		requestctx.Logger(ctx).Warn("quote not cleared after handoff", zap.Error(err))
	}
}

// messagingOrderText renders the order the way the store sends it over
// the messaging channel. Shipping is reported on its own line, so the
// synthetic shipping line item is skipped in the item list.
func messagingOrderText(order domain.PendingOrder, config domain.StoreConfig) string {
	customer := order.Customer

	var b strings.Builder
	fmt.Fprintf(&b, "*Novo Pedido - %s*\n\n", orFallback(config.StoreName, "Loja"))
	fmt.Fprintf(&b, "*Cliente:* %s %s\n", customer.FirstName, customer.LastName)
	fmt.Fprintf(&b, "*Telefone:* %s\n", customer.Phone)
	fmt.Fprintf(&b, "*Endereço:* %s, %s\n", customer.Street, customer.Number)
	fmt.Fprintf(&b, "*Bairro:* %s - %s/%s\n", customer.District, customer.City, customer.Region)
	if strings.TrimSpace(customer.Complement) != "" {
		fmt.Fprintf(&b, "*Comp:* %s\n", customer.Complement)
	}
	if strings.TrimSpace(customer.Reference) != "" {
		fmt.Fprintf(&b, "*Referência:* %s\n", strings.TrimSpace(customer.Reference))
	}
	b.WriteString("\n*--- Itens ---*\n")

	var subtotal float64
	for _, line := range order.Lines {
		if strings.Contains(strings.ToLower(line.Title), "frete") {
			continue
		}
		fmt.Fprintf(&b, "✅ %dx %s (%s)\n", line.Quantity, line.Title, domain.FormatBRL(line.UnitPrice))
		subtotal += line.UnitPrice * float64(line.Quantity)
	}

	fmt.Fprintf(&b, "\n*Subtotal:* %s", domain.FormatBRL(subtotal))
	fmt.Fprintf(&b, "\n*Frete (%s):* %s", order.Logistics.Service, domain.FormatBRL(order.Shipping))
	fmt.Fprintf(&b, "\n*TOTAL FINAL: %s*", domain.FormatBRL(subtotal+order.Shipping))
	return b.String()
}

func validateProfile(profile domain.CustomerProfile) error {
	required := []struct {
		field string
		value string
	}{
		{"first name", profile.FirstName},
		{"last name", profile.LastName},
		{"tax ID", profile.TaxID},
		{"street", profile.Street},
		{"number", profile.Number},
	}
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrProfileIncomplete, entry.field)
		}
	}
	return nil
}

func translateQuoteError(err error) error {
	if errors.Is(err, ErrQuoteNotSelected) {
		return ErrCheckoutQuoteRequired
	}
	if errors.Is(err, ErrQuoteStale) {
		return err
	}
	return ErrCheckoutUnavailable
}

// lineTitle joins the product name and variant, omitting the sentinel
// single-variant label.
func lineTitle(item domain.CartItem) string {
	title := strings.TrimSpace(item.Title)
	variant := strings.TrimSpace(item.Variant)
	if variant != "" && variant != domain.DefaultVariant {
		title += " - " + variant
	}
	return title
}

func safeQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}

func safePrice(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}

func orFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
