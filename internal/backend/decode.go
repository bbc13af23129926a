package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lojafacil/engine/internal/domain"
)

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "sim"
	case float64:
		return v != 0
	default:
		return false
	}
}

// firstValue returns the first present key, tolerating the accent and
// casing variants the sheet backend produces.
func firstValue(row map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return value
		}
	}
	return nil
}

func stringField(row map[string]any, keys ...string) string {
	return asString(firstValue(row, keys...))
}

// moneyField parses a price that may arrive as a number or a
// locale-formatted string.
func moneyField(row map[string]any, keys ...string) float64 {
	value := firstValue(row, keys...)
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	default:
		return domain.ParseMoney(asString(v))
	}
}

func floatField(row map[string]any, fallback float64, keys ...string) float64 {
	value := firstValue(row, keys...)
	switch v := value.(type) {
	case nil:
		return fallback
	case float64:
		return v
	default:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(asString(v), ",", "."), 64)
		if err != nil {
			return fallback
		}
		return parsed
	}
}

func intField(row map[string]any, keys ...string) int {
	value := firstValue(row, keys...)
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return int(v)
	default:
		parsed, err := strconv.Atoi(asString(v))
		if err != nil {
			return 0
		}
		return parsed
	}
}

// splitList turns a comma-separated sheet cell or a JSON array into a
// trimmed slice.
func splitList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		raw := asString(v)
		if raw == "" {
			return nil
		}
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
}

func decodeProduct(row map[string]any) domain.Product {
	rawPrice := stringField(row, "Preço", "Preco", "preco", "price")
	return domain.Product{
		ID:                  stringField(row, "ID", "id"),
		Name:                stringField(row, "Produto", "produto"),
		Category:            stringField(row, "Categoria", "categoria"),
		Description:         stringField(row, "Descrição", "Descricao", "descricao"),
		RawPrice:            rawPrice,
		Price:               domain.ParseMoney(rawPrice),
		Weight:              floatField(row, 0, "Peso", "peso"),
		Height:              floatField(row, 0, "Altura", "altura"),
		Width:               floatField(row, 0, "Largura", "largura"),
		Length:              floatField(row, 0, "Comprimento", "comprimento"),
		FreeShippingRegions: splitList(firstValue(row, "FreteGratis", "freteGratis")),
		Variants:            splitList(firstValue(row, "Tamanhos", "Variacoes", "tamanhos")),
		Attributes:          splitList(firstValue(row, "Atributos", "atributos")),
		Image:               stringField(row, "ImagemPrincipal", "imagemPrincipal"),
		ExtraImages:         splitList(firstValue(row, "ImagensExtras", "imagensExtras")),
	}
}

func decodeProfile(row map[string]any) domain.CustomerProfile {
	return domain.CustomerProfile{
		FirstName:  stringField(row, "nome", "Nome"),
		LastName:   stringField(row, "sobrenome", "Sobrenome"),
		TaxID:      stringField(row, "cpf", "CPF"),
		Phone:      stringField(row, "telefone", "Telefone", "whatsapp"),
		Email:      stringField(row, "email", "Email"),
		PostalCode: stringField(row, "cep", "CEP"),
		Street:     stringField(row, "rua", "Rua", "logradouro"),
		Number:     stringField(row, "numero", "Numero", "Número"),
		Complement: stringField(row, "complemento", "Complemento"),
		District:   stringField(row, "bairro", "Bairro"),
		City:       stringField(row, "cidade", "Cidade", "localidade"),
		Region:     stringField(row, "uf", "UF", "estado", "Estado"),
		Reference:  stringField(row, "referencia", "Referencia", "Referência"),
	}
}

func decodeStoreConfig(flat map[string]any) domain.StoreConfig {
	return domain.StoreConfig{
		StoreName:       stringField(flat, "NomeDoSite", "nomeDoSite"),
		WhatsAppNumber:  stringField(flat, "NumeroWhatsapp", "numeroWhatsapp"),
		CheckoutChannel: domain.CheckoutChannel(strings.ToLower(stringField(flat, "TipoCheckout", "tipoCheckout"))),
		ShippingSubsidy: moneyField(flat, "SubsidioFrete", "subsidioFrete"),
		Version:         stringField(flat, "VersaoCache", "versaoCache", "Versao"),
	}
}

func encodeProfile(profile domain.CustomerProfile) map[string]any {
	return map[string]any{
		"nome":        profile.FirstName,
		"sobrenome":   profile.LastName,
		"cpf":         profile.TaxID,
		"telefone":    profile.Phone,
		"email":       profile.Email,
		"cep":         profile.PostalCode,
		"rua":         profile.Street,
		"numero":      profile.Number,
		"complemento": profile.Complement,
		"bairro":      profile.District,
		"cidade":      profile.City,
		"uf":          profile.Region,
		"referencia":  profile.Reference,
	}
}

func encodeLines(lines []domain.OrderLine) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		currency := line.Currency
		if currency == "" {
			currency = "BRL"
		}
		out = append(out, map[string]any{
			"title":       line.Title,
			"quantity":    line.Quantity,
			"unit_price":  line.UnitPrice,
			"currency_id": currency,
		})
	}
	return out
}

func encodeLogistics(logistics domain.LogisticsSummary) map[string]any {
	return map[string]any{
		"servico":   logistics.Service,
		"peso":      strconv.FormatFloat(logistics.Weight, 'f', 2, 64),
		"dimensoes": logistics.Dimensions,
	}
}
