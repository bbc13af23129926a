// Package backend talks to the order backend: a single endpoint that
// multiplexes query routes for reads and op-discriminated JSON bodies for
// writes. Loose sheet-shaped payloads are decoded once here; every other
// package sees typed records.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lojafacil/engine/internal/domain"
)

const (
	opQuoteShipping  = "calcular_frete"
	opRequestCode    = "solicitar_codigo"
	opValidateCode   = "validar_codigo"
	opListOrders     = "listar_pedidos"
	opRecordMessaged = "registrar_pedido_whatsapp"

	routeProducts = "produtos"
	routeConfig   = "config"

	defaultTimeout  = 20 * time.Second
	maxResponseSize = 4 << 20
)

// ErrUnavailable reports a transport failure or malformed backend reply.
var ErrUnavailable = errors.New("backend: unavailable")

// BusinessError carries a backend-reported failure message fit to show
// the shopper inline, such as an unreachable carrier service.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return "backend: " + e.Message
}

// ClientDeps lists the dependencies required by Client.
type ClientDeps struct {
	BaseURL    string
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Client is the typed order-backend client.
type Client struct {
	baseURL string
	http    *http.Client
	clock   func() time.Time
}

// NewClient validates deps and constructs a Client.
func NewClient(deps ClientDeps) (*Client, error) {
	base := strings.TrimSpace(deps.BaseURL)
	if base == "" {
		return nil, errors.New("backend: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Client{baseURL: base, http: httpClient, clock: clock}, nil
}

// FetchProducts loads the full product catalog.
func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	raw, err := c.get(ctx, routeProducts)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode products: %v", ErrUnavailable, err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		product := decodeProduct(row)
		if product.ID == "" {
			continue
		}
		products = append(products, product)
	}
	return products, nil
}

// FetchConfig loads the store configuration, accepting both the
// key/value row list and the flat object shape.
func (c *Client) FetchConfig(ctx context.Context) (domain.StoreConfig, error) {
	raw, err := c.get(ctx, routeConfig)
	if err != nil {
		return domain.StoreConfig{}, err
	}

	flat := map[string]any{}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		for _, row := range rows {
			key := asString(row["Chave"])
			if key == "" {
				key = asString(row["chave"])
			}
			value := row["Valor"]
			if value == nil {
				value = row["valor"]
			}
			if key != "" && value != nil {
				flat[key] = value
			}
		}
	} else if err := json.Unmarshal(raw, &flat); err != nil {
		return domain.StoreConfig{}, fmt.Errorf("%w: decode config: %v", ErrUnavailable, err)
	}

	return decodeStoreConfig(flat), nil
}

// ShippingRequest describes the aggregated parcel sent for quoting.
type ShippingRequest struct {
	PostalCode string
	Weight     float64
	Length     int
	Height     int
	Width      int
}

// QuoteShipping asks the backend for carrier options. Backend-reported
// failures come back as *BusinessError.
func (c *Client) QuoteShipping(ctx context.Context, req ShippingRequest) ([]domain.CarrierOption, error) {
	payload := map[string]any{
		"op":          opQuoteShipping,
		"cep":         req.PostalCode,
		"peso":        strconv.FormatFloat(req.Weight, 'f', 2, 64),
		"comprimento": req.Length,
		"altura":      req.Height,
		"largura":     req.Width,
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Erro   any              `json:"erro"`
		Opcoes []map[string]any `json:"opcoes"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", ErrUnavailable, err)
	}
	if msg := businessMessage(reply.Erro); msg != "" {
		return nil, &BusinessError{Message: msg}
	}

	options := make([]domain.CarrierOption, 0, len(reply.Opcoes))
	for _, row := range reply.Opcoes {
		name := asString(row["nome"])
		if name == "" {
			continue
		}
		options = append(options, domain.CarrierOption{
			Name:         name,
			Price:        moneyField(row, "valor", "preco", "price"),
			ListPrice:    moneyField(row, "valor", "preco", "price"),
			DeadlineDays: intField(row, "prazo"),
		})
	}
	return options, nil
}

// CodeRequestResult is the outcome of asking for a one-time code.
type CodeRequestResult struct {
	Found        bool
	RequiresCode bool
	// Destination is the masked channel the code was sent to.
	Destination string
	// Profile is populated only for legacy customers released without
	// a code.
	Profile domain.CustomerProfile
}

// RequestCode starts the identification flow for the given tax ID.
func (c *Client) RequestCode(ctx context.Context, taxID string) (CodeRequestResult, error) {
	body, err := c.post(ctx, map[string]any{"op": opRequestCode, "cpf": taxID})
	if err != nil {
		return CodeRequestResult{}, err
	}

	var row map[string]any
	if err := json.Unmarshal(body, &row); err != nil {
		return CodeRequestResult{}, fmt.Errorf("%w: decode code request: %v", ErrUnavailable, err)
	}
	if msg := businessMessage(row["erro"]); msg != "" {
		return CodeRequestResult{}, &BusinessError{Message: msg}
	}

	result := CodeRequestResult{
		Found:        asBool(row["encontrado"]),
		RequiresCode: asBool(row["requerCodigo"]),
		Destination:  asString(row["destino"]),
	}
	if result.Found && !result.RequiresCode {
		result.Profile = decodeProfile(row)
	}
	return result, nil
}

// CodeValidationResult is the outcome of checking a one-time code.
type CodeValidationResult struct {
	Valid   bool
	Profile domain.CustomerProfile
}

// ValidateCode checks the one-time code and returns the released profile.
func (c *Client) ValidateCode(ctx context.Context, taxID, code string) (CodeValidationResult, error) {
	body, err := c.post(ctx, map[string]any{"op": opValidateCode, "cpf": taxID, "codigo": code})
	if err != nil {
		return CodeValidationResult{}, err
	}

	var row map[string]any
	if err := json.Unmarshal(body, &row); err != nil {
		return CodeValidationResult{}, fmt.Errorf("%w: decode code validation: %v", ErrUnavailable, err)
	}
	if msg := businessMessage(row["erro"]); msg != "" {
		return CodeValidationResult{}, &BusinessError{Message: msg}
	}

	result := CodeValidationResult{Valid: asBool(row["encontrado"])}
	if result.Valid {
		result.Profile = decodeProfile(row)
	}
	return result, nil
}

// ListOrders returns the order history for the given tax ID.
func (c *Client) ListOrders(ctx context.Context, taxID string) ([]domain.OrderRecord, error) {
	body, err := c.post(ctx, map[string]any{"op": opListOrders, "cpf": taxID})
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		// An object reply signals a business failure or empty history.
		var row map[string]any
		if err2 := json.Unmarshal(body, &row); err2 == nil {
			if msg := businessMessage(row["erro"]); msg != "" {
				return nil, &BusinessError{Message: msg}
			}
			return nil, nil
		}
		return nil, fmt.Errorf("%w: decode orders: %v", ErrUnavailable, err)
	}

	records := make([]domain.OrderRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.OrderRecord{
			ID:           asString(row["id"]),
			Status:       asString(row["status"]),
			Date:         asString(row["data"]),
			ItemsText:    asString(row["itens"]),
			Total:        moneyField(row, "total"),
			PaymentLink:  asString(row["link"]),
			TrackingCode: asString(row["rastreio"]),
		})
	}
	return records, nil
}

// RecordMessagingOrder books a messaging-channel order for fulfilment
// tracking. The returned backend order ID may be empty.
func (c *Client) RecordMessagingOrder(ctx context.Context, order domain.PendingOrder) (string, error) {
	payload := map[string]any{
		"op":          opRecordMessaged,
		"cliente":     encodeProfile(order.Customer),
		"items":       encodeLines(order.Lines),
		"logistica":   encodeLogistics(order.Logistics),
		"canal":       string(domain.ChannelMessaging),
		"frete_nome":  order.Logistics.Service,
		"frete_valor": order.Shipping,
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}

	var row map[string]any
	if err := json.Unmarshal(body, &row); err != nil {
		return "", fmt.Errorf("%w: decode order receipt: %v", ErrUnavailable, err)
	}
	if msg := businessMessage(row["erro"]); msg != "" {
		return "", &BusinessError{Message: msg}
	}
	return asString(row["idPedido"]), nil
}

// CreatePayment submits the order for payment and returns the redirect
// URL. Replies that do not look like a URL surface as *BusinessError.
func (c *Client) CreatePayment(ctx context.Context, order domain.PendingOrder, returnTo string) (string, error) {
	payload := map[string]any{
		"cliente":   encodeProfile(order.Customer),
		"items":     encodeLines(order.Lines),
		"logistica": encodeLogistics(order.Logistics),
		"return_to": returnTo,
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}

	link := strings.TrimSpace(string(body))
	if !strings.Contains(link, "http") {
		return "", &BusinessError{Message: link}
	}
	return link, nil
}

func (c *Client) get(ctx context.Context, route string) ([]byte, error) {
	target := fmt.Sprintf("%s?rota=%s&nocache=%d", c.baseURL, route, c.clock().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return body, nil
}

// businessMessage extracts the backend error field, which arrives as a
// string message or a bare boolean flag.
func businessMessage(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "operação indisponível"
		}
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(asString(v))
	}
}
