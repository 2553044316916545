package policy

import (
	"fmt"
	"sort"
)

// DiffType classifies a change between two remote configs.
type DiffType string

const (
	DiffMarketAdded     DiffType = "market-added"
	DiffMarketRemoved   DiffType = "market-removed"
	DiffDocumentAdded   DiffType = "document-added"
	DiffDocumentRemoved DiffType = "document-removed"
	DiffDocumentUpdated DiffType = "document-updated"
	DiffMetadataChanged DiffType = "metadata-changed"
)

// DiffItem is one change. Before and After are set for metadata changes only;
// nil means the value was absent.
type DiffItem struct {
	Market string   `json:"market"`
	Type   DiffType `json:"type"`
	DocID  string   `json:"docId,omitempty"`
	Field  string   `json:"field,omitempty"`
	Before any      `json:"before"`
	After  any      `json:"after"`
}

// String renders the item for the admin review screen.
func (d DiffItem) String() string {
	switch d.Type {
	case DiffMarketAdded:
		return fmt.Sprintf("Mercado %s: agregado.", d.Market)
	case DiffMarketRemoved:
		return fmt.Sprintf("Mercado %s: eliminado.", d.Market)
	case DiffDocumentAdded:
		return fmt.Sprintf("Mercado %s: documento %s agregado.", d.Market, d.DocID)
	case DiffDocumentRemoved:
		return fmt.Sprintf("Mercado %s: documento %s eliminado.", d.Market, d.DocID)
	case DiffDocumentUpdated:
		return fmt.Sprintf("Mercado %s: documento %s actualizado.", d.Market, d.DocID)
	case DiffMetadataChanged:
		return fmt.Sprintf("Mercado %s: %s %s → %s.", d.Market, d.Field, diffValue(d.Before), diffValue(d.After))
	default:
		return fmt.Sprintf("Mercado %s: cambio.", d.Market)
	}
}

func diffValue(v any) string {
	if v == nil {
		return "sin valor"
	}
	return fmt.Sprint(v)
}

// Diff compares two remote configs. Markets are visited in sorted key order,
// documents in slice order (next's additions and updates, then base's
// removals). Diff(c, c) is always empty.
func Diff(base, next RemoteConfig) []DiffItem {
	markets := make(map[string]struct{}, len(base)+len(next))
	for k := range base {
		markets[k] = struct{}{}
	}
	for k := range next {
		markets[k] = struct{}{}
	}
	keys := make([]string, 0, len(markets))
	for k := range markets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []DiffItem
	for _, market := range keys {
		b, inBase := base[market]
		n, inNext := next[market]
		switch {
		case !inBase && inNext:
			out = append(out, DiffItem{Market: market, Type: DiffMarketAdded})
			continue
		case inBase && !inNext:
			out = append(out, DiffItem{Market: market, Type: DiffMarketRemoved})
			continue
		}
		out = append(out, diffDocuments(market, b.Documents, n.Documents)...)
		out = append(out, diffMetadata(market, b.Metadata, n.Metadata)...)
	}
	return out
}

// indexDocs keys documents by id keeping first-seen order; a repeated id
// keeps its first position and its last value.
func indexDocs(docs []Document) ([]string, map[string]Document) {
	order := make([]string, 0, len(docs))
	byID := make(map[string]Document, len(docs))
	for _, d := range docs {
		if _, seen := byID[d.ID]; !seen {
			order = append(order, d.ID)
		}
		byID[d.ID] = d
	}
	return order, byID
}

func diffDocuments(market string, base, next []Document) []DiffItem {
	baseOrder, baseDocs := indexDocs(base)
	nextOrder, nextDocs := indexDocs(next)

	var out []DiffItem
	for _, id := range nextOrder {
		doc := nextDocs[id]
		prev, ok := baseDocs[id]
		if !ok {
			out = append(out, DiffItem{Market: market, Type: DiffDocumentAdded, DocID: id})
			continue
		}
		if prev.Label != doc.Label || prev.Optional != doc.Optional || prev.Tooltip != doc.Tooltip {
			out = append(out, DiffItem{Market: market, Type: DiffDocumentUpdated, DocID: id})
		}
	}
	for _, id := range baseOrder {
		if _, ok := nextDocs[id]; !ok {
			out = append(out, DiffItem{Market: market, Type: DiffDocumentRemoved, DocID: id})
		}
	}
	return out
}

func diffMetadata(market string, base, next Metadata) []DiffItem {
	var out []DiffItem
	changed := func(field string, before, after any) {
		out = append(out, DiffItem{Market: market, Type: DiffMetadataChanged, Field: field, Before: before, After: after})
	}

	if base.OCRThreshold != next.OCRThreshold {
		changed("ocrThreshold", base.OCRThreshold, next.OCRThreshold)
	}

	bp := base.Protection != nil && base.Protection.Required
	np := next.Protection != nil && next.Protection.Required
	if bp != np {
		changed("protection.required", bp, np)
	}

	bi, ni := incomeThreshold(base), incomeThreshold(next)
	if !equalOptional(bi, ni) {
		changed("income.threshold", optionalValue(bi), optionalValue(ni))
	}

	bt, nt := base.Tanda, next.Tanda
	switch {
	case (bt == nil) != (nt == nil):
		changed("tanda.enabled", bt != nil, nt != nil)
	case bt != nil && nt != nil:
		if bt.MinMembers != nt.MinMembers {
			changed("tanda.minMembers", bt.MinMembers, nt.MinMembers)
		}
		if bt.MaxMembers != nt.MaxMembers {
			changed("tanda.maxMembers", bt.MaxMembers, nt.MaxMembers)
		}
	}
	return out
}

func incomeThreshold(m Metadata) *float64 {
	if m.Income == nil {
		return nil
	}
	v := m.Income.Threshold
	return &v
}

func equalOptional(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func optionalValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
