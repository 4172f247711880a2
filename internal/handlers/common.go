package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxsar/commerce-api/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

const defaultBodyLimit = 16 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type addressPayload struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Line1       string `json:"line_1"`
	Line2       string `json:"line_2,omitempty"`
	City        string `json:"city,omitempty"`
	Subdivision string `json:"subdivision,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		FirstName:   addr.FirstName,
		LastName:    addr.LastName,
		Line1:       addr.Line1,
		Line2:       addr.Line2,
		City:        addr.City,
		Subdivision: addr.Subdivision,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode,
		Phone:       addr.Phone,
	}
}

func (p *addressPayload) toAddress() *services.Address {
	if p == nil {
		return nil
	}
	return &services.Address{
		FirstName:   strings.TrimSpace(p.FirstName),
		LastName:    strings.TrimSpace(p.LastName),
		Line1:       strings.TrimSpace(p.Line1),
		Line2:       strings.TrimSpace(p.Line2),
		City:        strings.TrimSpace(p.City),
		Subdivision: strings.TrimSpace(p.Subdivision),
		PostalCode:  strings.TrimSpace(p.PostalCode),
		CountryCode: strings.ToUpper(strings.TrimSpace(p.CountryCode)),
		Phone:       strings.TrimSpace(p.Phone),
	}
}

type totalsPayload struct {
	Subtotal      int64 `json:"subtotal"`
	TaxTotal      int64 `json:"tax_total"`
	ShippingTotal int64 `json:"shipping_total"`
	DiscountTotal int64 `json:"discount_total"`
	Total         int64 `json:"total"`
}

type taxLinePayload struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount int64   `json:"amount"`
	Source string  `json:"source"`
}

func buildTaxLines(lines []services.TaxLine) []taxLinePayload {
	if len(lines) == 0 {
		return []taxLinePayload{}
	}
	out := make([]taxLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, taxLinePayload{
			Name:   line.Name,
			Rate:   line.Rate,
			Amount: line.Amount,
			Source: string(line.Source),
		})
	}
	return out
}

type discountPayload struct {
	ID          string `json:"id"`
	PromotionID string `json:"promotion_id"`
	Code        string `json:"code,omitempty"`
	Type        string `json:"type"`
	Value       int64  `json:"value"`
	Amount      int64  `json:"discount_amount"`
	AppliedAt   string `json:"applied_at,omitempty"`
}

func buildDiscounts(discounts []services.AppliedDiscount) []discountPayload {
	if len(discounts) == 0 {
		return []discountPayload{}
	}
	out := make([]discountPayload, 0, len(discounts))
	for _, d := range discounts {
		out = append(out, discountPayload{
			ID:          d.ID,
			PromotionID: d.PromotionID,
			Code:        d.Code,
			Type:        string(d.Type),
			Value:       d.Value,
			Amount:      d.Amount,
			AppliedAt:   formatTime(d.AppliedAt),
		})
	}
	return out
}

type shippingMethodPayload struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Name             string `json:"name"`
	Price            int64  `json:"price"`
}

func buildShippingMethodPayload(method *services.ShippingMethod) *shippingMethodPayload {
	if method == nil {
		return nil
	}
	return &shippingMethodPayload{
		ID:               method.ID,
		ShippingOptionID: method.ShippingOptionID,
		Name:             method.Name,
		Price:            method.Price,
	}
}

type snapshotPayload struct {
	Title        string `json:"title"`
	VariantTitle string `json:"variant_title,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	SKU          string `json:"sku,omitempty"`
	TaxCode      string `json:"tax_code,omitempty"`
}
