package feed

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// xmlDelta mirrors one row of an XML delta feed. Suppliers disagree on
// field names, so each field carries its known aliases.
type xmlDelta struct {
	IDAttr        string `xml:"id,attr"`
	ID            string `xml:"id"`
	Price         string `xml:"price"`
	OldPrice      string `xml:"oldprice"`
	OldPriceAlt   string `xml:"old_price"`
	AvailableAttr string `xml:"available,attr"`
	Available     string `xml:"available"`
	InStock       string `xml:"in_stock"`
	Quantity      string `xml:"quantity"`
	QuantityAlt   string `xml:"stock_quantity"`
}

// ParseStockUpdates decodes a delta feed carrying price and stock
// changes. Rows without an id are dropped; fields a row does not
// mention stay nil so the stored product keeps its current values.
func (p *Parser) ParseStockUpdates(content []byte) ([]catalog.StockUpdate, error) {
	if DetectFormat(content) == FormatJSON {
		return p.parseJSONDelta(content)
	}
	return p.parseXMLDelta(content)
}

func (p *Parser) parseXMLDelta(content []byte) ([]catalog.StockUpdate, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charsetReader

	var updates []catalog.StockUpdate
	skipped := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed delta feed XML", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "offer", "item", "product":
			var row xmlDelta
			if err := dec.DecodeElement(&row, &start); err != nil {
				return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed delta feed XML", err)
			}
			update, ok := deltaToUpdate(row)
			if !ok {
				skipped++
				continue
			}
			updates = append(updates, update)
		}
	}
	if skipped > 0 {
		p.logger.Warn("skipped delta rows without id", "count", skipped)
	}
	return updates, nil
}

func deltaToUpdate(row xmlDelta) (catalog.StockUpdate, bool) {
	id := firstNonEmpty(row.IDAttr, strings.TrimSpace(row.ID))
	if id == "" {
		return catalog.StockUpdate{}, false
	}
	update := catalog.StockUpdate{ID: id}
	if v, ok := parsePrice(row.Price); ok {
		update.Price = &v
	}
	if v, ok := parsePrice(firstNonEmpty(row.OldPrice, row.OldPriceAlt)); ok {
		update.OldPrice = &v
	}
	if flag := firstNonEmpty(row.AvailableAttr, row.Available, row.InStock); flag != "" {
		inStock := parseStockFlag(flag)
		update.InStock = &inStock
	}
	if raw := firstNonEmpty(row.Quantity, row.QuantityAlt); raw != "" {
		if q, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			update.Quantity = &q
		}
	}
	return update, true
}

func (p *Parser) parseJSONDelta(content []byte) ([]catalog.StockUpdate, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed delta feed JSON", err)
	}

	var updates []catalog.StockUpdate
	skipped := 0
	for _, item := range jsonItems(top) {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		id := jsonString(obj, "id")
		if id == "" {
			skipped++
			continue
		}
		update := catalog.StockUpdate{ID: id}
		if v, ok := jsonFloat(obj, "price"); ok {
			update.Price = &v
		}
		if v, ok := jsonFloat(obj, "old_price", "oldprice"); ok {
			update.OldPrice = &v
		}
		if v, ok := jsonBool(obj, "in_stock", "available"); ok {
			update.InStock = &v
		}
		if v, ok := jsonFloat(obj, "quantity"); ok {
			q := int(v)
			update.Quantity = &q
		}
		updates = append(updates, update)
	}
	if skipped > 0 {
		p.logger.Warn("skipped delta rows without id", "count", skipped)
	}
	return updates, nil
}
