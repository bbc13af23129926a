// Package address resolves Brazilian postal codes through the ViaCEP
// public lookup service.
package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://viacep.com.br"
	defaultTimeout = 8 * time.Second
)

var (
	// ErrInvalidPostalCode reports a postal code that is not eight digits.
	ErrInvalidPostalCode = errors.New("address: postal code must have 8 digits")
	// ErrNotFound reports a well-formed postal code unknown to the service.
	ErrNotFound = errors.New("address: postal code not found")
	// ErrUnavailable reports a lookup-service outage.
	ErrUnavailable = errors.New("address: lookup unavailable")
)

// Address is a resolved delivery location.
type Address struct {
	PostalCode string
	Street     string
	District   string
	City       string
	Region     string
}

// ClientDeps lists the dependencies required by Client.
type ClientDeps struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client looks up postal codes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a lookup client with sane defaults.
func NewClient(deps ClientDeps) *Client {
	base := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: base, http: httpClient}
}

// NormalizePostalCode strips formatting and validates the 8-digit shape.
func NormalizePostalCode(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	code := digits.String()
	if len(code) != 8 {
		return "", ErrInvalidPostalCode
	}
	return code, nil
}

// Lookup resolves the postal code into an address.
func (c *Client) Lookup(ctx context.Context, postalCode string) (Address, error) {
	code, err := NormalizePostalCode(postalCode)
	if err != nil {
		return Address{}, err
	}

	target := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var reply struct {
		Erro       any    `json:"erro"`
		Logradouro string `json:"logradouro"`
		Bairro     string `json:"bairro"`
		Localidade string `json:"localidade"`
		UF         string `json:"uf"`
	}
	if err := json.Unmarshal(mustRead(resp.Body), &reply); err != nil {
		return Address{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if isErroFlag(reply.Erro) {
		return Address{}, ErrNotFound
	}

	return Address{
		PostalCode: code,
		Street:     strings.TrimSpace(reply.Logradouro),
		District:   strings.TrimSpace(reply.Bairro),
		City:       strings.TrimSpace(reply.Localidade),
		Region:     strings.ToUpper(strings.TrimSpace(reply.UF)),
	}, nil
}

// isErroFlag accepts the boolean and string spellings of the marker.
func isErroFlag(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func mustRead(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return nil
	}
	return body
}
