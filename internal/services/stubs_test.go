package services

import (
	"context"
	"time"

	"github.com/lojafacil/engine/internal/address"
	"github.com/lojafacil/engine/internal/backend"
	"github.com/lojafacil/engine/internal/domain"
	"github.com/lojafacil/engine/internal/platform/jobs"
	"github.com/lojafacil/engine/internal/repositories"
)

type stubSessionRepo struct {
	carts           map[string]domain.Cart
	quotes          map[string]domain.ShippingQuote
	clientSessions  map[string]domain.ClientSession
	identifications map[string]domain.IdentificationSession

	failCart bool
	saveErr  error

	quoteClears int
	cartClears  int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{
		carts:           map[string]domain.Cart{},
		quotes:          map[string]domain.ShippingQuote{},
		clientSessions:  map[string]domain.ClientSession{},
		identifications: map[string]domain.IdentificationSession{},
	}
}

func (s *stubSessionRepo) Cart(_ context.Context, sessionID string) (domain.Cart, error) {
	if s.failCart {
		return domain.Cart{}, context.DeadlineExceeded
	}
	return s.carts[sessionID], nil
}

func (s *stubSessionRepo) SaveCart(_ context.Context, sessionID string, cart domain.Cart) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.carts[sessionID] = cart
	return nil
}

func (s *stubSessionRepo) ClearCart(_ context.Context, sessionID string) error {
	s.cartClears++
	delete(s.carts, sessionID)
	return nil
}

func (s *stubSessionRepo) Quote(_ context.Context, sessionID string) (domain.ShippingQuote, error) {
	quote, ok := s.quotes[sessionID]
	if !ok {
		return domain.ShippingQuote{}, repositories.ErrNotFound
	}
	return quote, nil
}

func (s *stubSessionRepo) SaveQuote(_ context.Context, sessionID string, quote domain.ShippingQuote) error {
	s.quotes[sessionID] = quote
	return nil
}

func (s *stubSessionRepo) ClearQuote(_ context.Context, sessionID string) error {
	s.quoteClears++
	delete(s.quotes, sessionID)
	return nil
}

func (s *stubSessionRepo) ClientSession(_ context.Context, sessionID string) (domain.ClientSession, error) {
	session, ok := s.clientSessions[sessionID]
	if !ok {
		return domain.ClientSession{}, repositories.ErrNotFound
	}
	return session, nil
}

func (s *stubSessionRepo) SaveClientSession(_ context.Context, sessionID string, session domain.ClientSession) error {
	s.clientSessions[sessionID] = session
	return nil
}

func (s *stubSessionRepo) ClearClientSession(_ context.Context, sessionID string) error {
	delete(s.clientSessions, sessionID)
	return nil
}

func (s *stubSessionRepo) Identification(_ context.Context, sessionID string) (domain.IdentificationSession, error) {
	ident, ok := s.identifications[sessionID]
	if !ok {
		return domain.IdentificationSession{}, repositories.ErrNotFound
	}
	return ident, nil
}

func (s *stubSessionRepo) SaveIdentification(_ context.Context, sessionID string, ident domain.IdentificationSession) error {
	s.identifications[sessionID] = ident
	return nil
}

func (s *stubSessionRepo) ClearIdentification(_ context.Context, sessionID string) error {
	delete(s.identifications, sessionID)
	return nil
}

func (s *stubSessionRepo) Purge(_ context.Context, sessionID string) error {
	delete(s.carts, sessionID)
	delete(s.quotes, sessionID)
	delete(s.clientSessions, sessionID)
	delete(s.identifications, sessionID)
	return nil
}

type stubCatalogRepo struct {
	products []domain.Product
	config   *domain.StoreConfig
	version  string

	resets       int
	savedConfigs int
}

func (s *stubCatalogRepo) Products(context.Context) ([]domain.Product, error) {
	if s.products == nil {
		return nil, repositories.ErrNotFound
	}
	return s.products, nil
}

func (s *stubCatalogRepo) SaveProducts(_ context.Context, products []domain.Product) error {
	s.products = products
	return nil
}

func (s *stubCatalogRepo) StoreConfig(context.Context) (domain.StoreConfig, error) {
	if s.config == nil {
		return domain.StoreConfig{}, repositories.ErrNotFound
	}
	return *s.config, nil
}

func (s *stubCatalogRepo) SaveStoreConfig(_ context.Context, config domain.StoreConfig) error {
	s.config = &config
	s.savedConfigs++
	return nil
}

func (s *stubCatalogRepo) ConfigVersion(context.Context) (string, error) {
	return s.version, nil
}

func (s *stubCatalogRepo) SaveConfigVersion(_ context.Context, version string) error {
	s.version = version
	return nil
}

func (s *stubCatalogRepo) Reset(context.Context) error {
	s.resets++
	s.products = nil
	s.config = nil
	s.version = ""
	return nil
}

type stubBackend struct {
	products    []domain.Product
	productsErr error

	config    domain.StoreConfig
	configErr error

	options  []domain.CarrierOption
	quoteErr error
	quoteReq backend.ShippingRequest

	codeRequest    backend.CodeRequestResult
	codeRequestErr error
	validation     backend.CodeValidationResult
	validationErr  error

	orders    []domain.OrderRecord
	ordersErr error

	recordedOrder *domain.PendingOrder
	recordID      string
	recordErr     error

	paymentOrder *domain.PendingOrder
	paymentLink  string
	paymentErr   error
	returnTo     string
}

func (s *stubBackend) FetchProducts(context.Context) ([]domain.Product, error) {
	return s.products, s.productsErr
}

func (s *stubBackend) FetchConfig(context.Context) (domain.StoreConfig, error) {
	return s.config, s.configErr
}

func (s *stubBackend) QuoteShipping(_ context.Context, req backend.ShippingRequest) ([]domain.CarrierOption, error) {
	s.quoteReq = req
	return append([]domain.CarrierOption(nil), s.options...), s.quoteErr
}

func (s *stubBackend) RequestCode(context.Context, string) (backend.CodeRequestResult, error) {
	return s.codeRequest, s.codeRequestErr
}

func (s *stubBackend) ValidateCode(context.Context, string, string) (backend.CodeValidationResult, error) {
	return s.validation, s.validationErr
}

func (s *stubBackend) ListOrders(context.Context, string) ([]domain.OrderRecord, error) {
	return s.orders, s.ordersErr
}

func (s *stubBackend) RecordMessagingOrder(_ context.Context, order domain.PendingOrder) (string, error) {
	s.recordedOrder = &order
	return s.recordID, s.recordErr
}

func (s *stubBackend) CreatePayment(_ context.Context, order domain.PendingOrder, returnTo string) (string, error) {
	s.paymentOrder = &order
	s.returnTo = returnTo
	return s.paymentLink, s.paymentErr
}

type stubLookup struct {
	addr address.Address
	err  error
}

func (s *stubLookup) Lookup(_ context.Context, postalCode string) (address.Address, error) {
	if s.err != nil {
		return address.Address{}, s.err
	}
	addr := s.addr
	if addr.PostalCode == "" {
		addr.PostalCode = postalCode
	}
	return addr, nil
}

type stubTokens struct {
	ttl       time.Duration
	now       func() time.Time
	verifyErr error
	minted    []string
}

func (s *stubTokens) Mint(taxID string) (string, time.Time, error) {
	s.minted = append(s.minted, taxID)
	return "token-" + taxID, s.now().Add(s.ttl), nil
}

func (s *stubTokens) Verify(token string) (string, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	return token[len("token-"):], nil
}

func (s *stubTokens) Renew(token string) (string, string, time.Time, error) {
	taxID, err := s.Verify(token)
	if err != nil {
		return "", "", time.Time{}, err
	}
	renewed, expiresAt, err := s.Mint(taxID)
	return taxID, renewed, expiresAt, err
}

func (s *stubTokens) TTL() time.Duration {
	return s.ttl
}

type stubPublisher struct {
	messages []jobs.OrderRecordedMessage
	err      error
}

func (s *stubPublisher) PublishOrderRecorded(_ context.Context, msg jobs.OrderRecordedMessage) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

type stubConfigProvider struct {
	config domain.StoreConfig
	err    error
}

func (s *stubConfigProvider) Config(context.Context) (domain.StoreConfig, error) {
	return s.config, s.err
}

type stubProductFinder struct {
	products map[string]domain.Product
}

func (s *stubProductFinder) Find(_ context.Context, productID string) (domain.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}
