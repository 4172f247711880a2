package firestore

import (
	"strings"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
)

// Document fragments shared between the cart and order collections.

type addressDocument struct {
	FirstName   string `firestore:"firstName,omitempty"`
	LastName    string `firestore:"lastName,omitempty"`
	Line1       string `firestore:"line1"`
	Line2       string `firestore:"line2,omitempty"`
	City        string `firestore:"city,omitempty"`
	Subdivision string `firestore:"subdivision,omitempty"`
	PostalCode  string `firestore:"postalCode,omitempty"`
	CountryCode string `firestore:"countryCode"`
	Phone       string `firestore:"phone,omitempty"`
}

type snapshotDocument struct {
	Title        string `firestore:"title"`
	VariantTitle string `firestore:"variantTitle,omitempty"`
	Thumbnail    string `firestore:"thumbnail,omitempty"`
	SKU          string `firestore:"sku,omitempty"`
	TaxCode      string `firestore:"taxCode,omitempty"`
}

type discountDocument struct {
	ID          string    `firestore:"id"`
	PromotionID string    `firestore:"promotionId"`
	Code        string    `firestore:"code,omitempty"`
	Type        string    `firestore:"type"`
	Value       int64     `firestore:"value"`
	Amount      int64     `firestore:"amount"`
	AppliedAt   time.Time `firestore:"appliedAt"`
}

type taxLineDocument struct {
	Name   string  `firestore:"name"`
	Rate   float64 `firestore:"rate"`
	Amount int64   `firestore:"amount"`
	Source string  `firestore:"source"`
}

type shippingMethodDocument struct {
	ID               string `firestore:"id"`
	ShippingOptionID string `firestore:"shippingOptionId"`
	Name             string `firestore:"name"`
	Price            int64  `firestore:"price"`
}

type totalsDocument struct {
	Subtotal      int64 `firestore:"subtotal"`
	TaxTotal      int64 `firestore:"taxTotal"`
	ShippingTotal int64 `firestore:"shippingTotal"`
	DiscountTotal int64 `firestore:"discountTotal"`
	Total         int64 `firestore:"total"`
}

func encodeAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		FirstName:   strings.TrimSpace(addr.FirstName),
		LastName:    strings.TrimSpace(addr.LastName),
		Line1:       strings.TrimSpace(addr.Line1),
		Line2:       strings.TrimSpace(addr.Line2),
		City:        strings.TrimSpace(addr.City),
		Subdivision: strings.TrimSpace(addr.Subdivision),
		PostalCode:  strings.TrimSpace(addr.PostalCode),
		CountryCode: strings.ToUpper(strings.TrimSpace(addr.CountryCode)),
		Phone:       strings.TrimSpace(addr.Phone),
	}
}

func decodeAddress(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		FirstName:   doc.FirstName,
		LastName:    doc.LastName,
		Line1:       doc.Line1,
		Line2:       doc.Line2,
		City:        doc.City,
		Subdivision: doc.Subdivision,
		PostalCode:  doc.PostalCode,
		CountryCode: doc.CountryCode,
		Phone:       doc.Phone,
	}
}

func encodeSnapshot(snap domain.ProductSnapshot) snapshotDocument {
	return snapshotDocument{
		Title:        snap.Title,
		VariantTitle: snap.VariantTitle,
		Thumbnail:    snap.Thumbnail,
		SKU:          snap.SKU,
		TaxCode:      snap.TaxCode,
	}
}

func decodeSnapshot(doc snapshotDocument) domain.ProductSnapshot {
	return domain.ProductSnapshot{
		Title:        doc.Title,
		VariantTitle: doc.VariantTitle,
		Thumbnail:    doc.Thumbnail,
		SKU:          doc.SKU,
		TaxCode:      doc.TaxCode,
	}
}

func encodeDiscounts(discounts []domain.AppliedDiscount) []discountDocument {
	if len(discounts) == 0 {
		return nil
	}
	out := make([]discountDocument, 0, len(discounts))
	for _, d := range discounts {
		out = append(out, discountDocument{
			ID:          d.ID,
			PromotionID: d.PromotionID,
			Code:        d.Code,
			Type:        string(d.Type),
			Value:       d.Value,
			Amount:      d.Amount,
			AppliedAt:   d.AppliedAt.UTC(),
		})
	}
	return out
}

func decodeDiscounts(docs []discountDocument) []domain.AppliedDiscount {
	out := make([]domain.AppliedDiscount, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.AppliedDiscount{
			ID:          d.ID,
			PromotionID: d.PromotionID,
			Code:        d.Code,
			Type:        domain.DiscountType(d.Type),
			Value:       d.Value,
			Amount:      d.Amount,
			AppliedAt:   d.AppliedAt,
		})
	}
	return out
}

func encodeTaxLines(lines []domain.TaxLine) []taxLineDocument {
	if len(lines) == 0 {
		return nil
	}
	out := make([]taxLineDocument, 0, len(lines))
	for _, l := range lines {
		out = append(out, taxLineDocument{
			Name:   l.Name,
			Rate:   l.Rate,
			Amount: l.Amount,
			Source: string(l.Source),
		})
	}
	return out
}

func decodeTaxLines(docs []taxLineDocument) []domain.TaxLine {
	out := make([]domain.TaxLine, 0, len(docs))
	for _, l := range docs {
		out = append(out, domain.TaxLine{
			Name:   l.Name,
			Rate:   l.Rate,
			Amount: l.Amount,
			Source: domain.TaxLineSource(l.Source),
		})
	}
	return out
}

func encodeShippingMethod(method *domain.ShippingMethod) *shippingMethodDocument {
	if method == nil {
		return nil
	}
	return &shippingMethodDocument{
		ID:               method.ID,
		ShippingOptionID: method.ShippingOptionID,
		Name:             method.Name,
		Price:            method.Price,
	}
}

func decodeShippingMethod(doc *shippingMethodDocument) *domain.ShippingMethod {
	if doc == nil {
		return nil
	}
	return &domain.ShippingMethod{
		ID:               doc.ID,
		ShippingOptionID: doc.ShippingOptionID,
		Name:             doc.Name,
		Price:            doc.Price,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
