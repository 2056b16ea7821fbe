package feed

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// Format identifies a feed payload encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DetectFormat sniffs the payload format from its leading bytes. XML is
// the default because YML catalogs are by far the most common feed
// type.
func DetectFormat(content []byte) Format {
	head := bytes.TrimSpace(content)
	if len(head) == 0 {
		return FormatXML
	}
	switch head[0] {
	case '<':
		return FormatXML
	case '{', '[':
		return FormatJSON
	}
	if looksLikeCSV(head) {
		return FormatCSV
	}
	return FormatXML
}

// looksLikeCSV checks whether the first line reads as a delimited
// header row containing an id column.
func looksLikeCSV(head []byte) bool {
	line := head
	if i := bytes.IndexByte(head, '\n'); i > 0 {
		line = head[:i]
	}
	if !bytes.ContainsRune(line, ',') {
		return false
	}
	for _, col := range strings.Split(string(line), ",") {
		if strings.EqualFold(strings.TrimSpace(col), "id") {
			return true
		}
	}
	return false
}

// Result is a parsed feed: shop metadata, the category tree flattened
// to id -> name, and the offers that survived per-offer validation.
type Result struct {
	ShopName   string
	Products   []catalog.Product
	Categories map[string]string
}

// Parser converts feed payloads into catalog products. Offers that
// cannot be parsed are skipped and logged rather than failing the whole
// feed.
type Parser struct {
	logger      *slog.Logger
	maxProducts int
}

// NewParser returns a parser that rejects feeds above maxProducts
// offers. A zero or negative cap disables the limit.
func NewParser(logger *slog.Logger, maxProducts int) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, maxProducts: maxProducts}
}

// Parse sniffs the payload format and dispatches to the matching
// decoder.
func (p *Parser) Parse(content []byte) (*Result, error) {
	switch DetectFormat(content) {
	case FormatJSON:
		return p.parseJSON(content)
	case FormatCSV:
		return p.parseCSV(content)
	default:
		return p.parseXML(content)
	}
}

// xmlOffer mirrors one <offer> element of a YML catalog. Google
// Merchant <item> entries decode into the same shape through their
// namespace-local names (title, link, image_link, product_type,
// availability).
type xmlOffer struct {
	ID           string     `xml:"id,attr"`
	IDChild      string     `xml:"id"`
	Available    string     `xml:"available,attr"`
	Name         string     `xml:"name"`
	Title        string     `xml:"title"`
	TypePrefix   string     `xml:"typePrefix"`
	Vendor       string     `xml:"vendor"`
	Model        string     `xml:"model"`
	Price        string     `xml:"price"`
	OldPrice     string     `xml:"oldprice"`
	OldPriceAlt  string     `xml:"old_price"`
	CurrencyID   string     `xml:"currencyId"`
	CategoryID   string     `xml:"categoryId"`
	ProductType  string     `xml:"product_type"`
	URL          string     `xml:"url"`
	Link         string     `xml:"link"`
	Pictures     []string   `xml:"picture"`
	ImageLink    string     `xml:"image_link"`
	Description  string     `xml:"description"`
	Brand        string     `xml:"brand"`
	VendorCode   string     `xml:"vendorCode"`
	Quantity     string     `xml:"quantity"`
	Availability string     `xml:"availability"`
	Params       []xmlParam `xml:"param"`
}

type xmlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlCategory struct {
	ID   string `xml:"id,attr"`
	Name string `xml:",chardata"`
}

// parseXML streams a YML (or Google Merchant) catalog. Offers are
// collected raw and resolved against the category map only after the
// document ends, so category declarations may follow the offers that
// reference them.
func (p *Parser) parseXML(content []byte) (*Result, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charsetReader

	res := &Result{Categories: make(map[string]string)}
	var offers []xmlOffer
	skipped := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed XML", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "name":
			// The first bare <name> belongs to the shop; offer names
			// are consumed whole by the offer decoder below.
			if res.ShopName == "" {
				var name string
				if err := dec.DecodeElement(&name, &start); err != nil {
					return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed XML", err)
				}
				res.ShopName = strings.TrimSpace(name)
			}
		case "category":
			var cat xmlCategory
			if err := dec.DecodeElement(&cat, &start); err != nil {
				return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed XML", err)
			}
			if cat.ID != "" {
				res.Categories[cat.ID] = strings.TrimSpace(cat.Name)
			}
		case "offer", "item", "product", "entry":
			var offer xmlOffer
			if err := dec.DecodeElement(&offer, &start); err != nil {
				return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed XML", err)
			}
			if offer.ID == "" && offer.IDChild == "" {
				skipped++
				p.logger.Debug("skipping offer without id", "element", start.Name.Local)
				continue
			}
			offers = append(offers, offer)
			if p.maxProducts > 0 && len(offers) > p.maxProducts {
				return nil, verrors.FeedError(verrors.ErrCodeFeedTooLarge,
					fmt.Sprintf("feed exceeds %d products", p.maxProducts), nil)
			}
		}
	}

	if res.ShopName == "" && len(offers) == 0 && len(res.Categories) == 0 {
		return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "no recognizable feed structure", nil)
	}

	res.Products = make([]catalog.Product, 0, len(offers))
	for _, offer := range offers {
		res.Products = append(res.Products, offerToProduct(offer, res.Categories))
	}
	if skipped > 0 {
		p.logger.Warn("skipped offers without id", "count", skipped)
	}
	return res, nil
}

// offerToProduct maps a decoded offer onto the catalog product shape,
// applying the YML fallback chains.
func offerToProduct(offer xmlOffer, categories map[string]string) catalog.Product {
	prod := catalog.Product{
		ID:          firstNonEmpty(offer.ID, offer.IDChild),
		Description: cleanText(offer.Description),
		URL:         firstNonEmpty(offer.URL, offer.Link),
		Currency:    firstNonEmpty(offer.CurrencyID, "RUB"),
		Brand:       firstNonEmpty(offer.Vendor, offer.Brand),
		VendorCode:  offer.VendorCode,
		Params:      map[string]string{},
	}

	name := firstNonEmpty(offer.Name, offer.Title)
	if name == "" {
		name = joinNonEmpty(offer.TypePrefix, offer.Vendor, offer.Model)
	}
	prod.Name = cleanText(name)

	prod.Price, _ = parsePrice(offer.Price)
	if v, ok := parsePrice(firstNonEmpty(offer.OldPrice, offer.OldPriceAlt)); ok {
		prod.OldPrice = &v
	}

	// The available attribute is strict: absent means in stock, present
	// means exactly "true". Availability children (Google Merchant) use
	// the permissive flag set.
	switch {
	case offer.Available != "":
		prod.InStock = strings.ToLower(offer.Available) == "true"
	case offer.Availability != "":
		prod.InStock = parseStockFlag(offer.Availability)
	default:
		prod.InStock = true
	}

	if offer.Quantity != "" {
		if q, err := strconv.Atoi(strings.TrimSpace(offer.Quantity)); err == nil {
			prod.Quantity = &q
		}
	}

	if offer.CategoryID != "" {
		prod.Category = categories[offer.CategoryID]
	} else if offer.ProductType != "" {
		prod.Category = offer.ProductType
	}

	if len(offer.Pictures) > 0 {
		prod.Image = offer.Pictures[0]
		prod.Images = offer.Pictures
	} else if offer.ImageLink != "" {
		prod.Image = offer.ImageLink
		prod.Images = []string{offer.ImageLink}
	}

	for _, param := range offer.Params {
		if param.Name == "" {
			continue
		}
		prod.Params[param.Name] = strings.TrimSpace(param.Value)
	}

	prod.RecomputeDiscount()
	return prod
}

// parseJSON handles plain JSON feeds: either a top-level array of
// products or an object wrapping one under a well-known key.
func (p *Parser) parseJSON(content []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed JSON", err)
	}

	items := jsonItems(top)
	res := &Result{Categories: map[string]string{}}
	if obj, ok := top.(map[string]any); ok {
		res.ShopName = jsonString(obj, "shop_name", "shop", "name")
	}

	skipped := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		prod, ok := jsonToProduct(obj)
		if !ok {
			skipped++
			p.logger.Debug("skipping feed item without id")
			continue
		}
		res.Products = append(res.Products, prod)
		if p.maxProducts > 0 && len(res.Products) > p.maxProducts {
			return nil, verrors.FeedError(verrors.ErrCodeFeedTooLarge,
				fmt.Sprintf("feed exceeds %d products", p.maxProducts), nil)
		}
		if prod.Category != "" {
			res.Categories[prod.Category] = prod.Category
		}
	}
	if skipped > 0 {
		p.logger.Warn("skipped feed items without id", "count", skipped)
	}
	return res, nil
}

// jsonItems finds the product array in a decoded JSON document.
func jsonItems(top any) []any {
	switch v := top.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"products", "items", "offers", "data"} {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
	}
	return nil
}

func jsonToProduct(obj map[string]any) (catalog.Product, bool) {
	id := jsonString(obj, "id")
	if id == "" {
		return catalog.Product{}, false
	}
	prod := catalog.Product{
		ID:          id,
		Name:        cleanText(jsonString(obj, "name", "title")),
		Description: cleanText(jsonString(obj, "description")),
		URL:         jsonString(obj, "url", "link"),
		Image:       jsonString(obj, "image", "picture"),
		Currency:    firstNonEmpty(jsonString(obj, "currency", "currencyId"), "RUB"),
		Category:    jsonString(obj, "category"),
		Brand:       jsonString(obj, "brand", "vendor"),
		VendorCode:  jsonString(obj, "vendor_code", "vendorCode"),
		Params:      map[string]string{},
		InStock:     true,
	}

	if v, ok := jsonFloat(obj, "price"); ok {
		prod.Price = v
	}
	if v, ok := jsonFloat(obj, "old_price", "oldprice"); ok {
		prod.OldPrice = &v
	}
	if v, ok := jsonBool(obj, "in_stock", "available"); ok {
		prod.InStock = v
	}
	if v, ok := jsonFloat(obj, "quantity"); ok {
		q := int(v)
		prod.Quantity = &q
	}
	if imgs, ok := obj["images"].([]any); ok {
		for _, img := range imgs {
			if s, ok := img.(string); ok && s != "" {
				prod.Images = append(prod.Images, s)
			}
		}
		if prod.Image == "" && len(prod.Images) > 0 {
			prod.Image = prod.Images[0]
		}
	}
	if params, ok := obj["params"].(map[string]any); ok {
		for k, v := range params {
			if k == "" {
				continue
			}
			if s, ok := v.(string); ok {
				prod.Params[k] = s
			}
		}
	}

	prod.RecomputeDiscount()
	return prod, true
}

// parseCSV handles CSV exports with a header row. Non-UTF-8 payloads
// fall back to windows-1251, the encoding Russian shop exports use.
func (p *Parser) parseCSV(content []byte) (*Result, error) {
	if !utf8.Valid(content) {
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(content)
		if err != nil {
			return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "undecodable feed CSV", err)
		}
		content = decoded
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed CSV", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	res := &Result{Categories: map[string]string{}}
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, verrors.FeedError(verrors.ErrCodeFeedInvalid, "malformed feed CSV", err)
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			}
		}
		prod, ok := csvToProduct(rec)
		if !ok {
			skipped++
			continue
		}
		res.Products = append(res.Products, prod)
		if p.maxProducts > 0 && len(res.Products) > p.maxProducts {
			return nil, verrors.FeedError(verrors.ErrCodeFeedTooLarge,
				fmt.Sprintf("feed exceeds %d products", p.maxProducts), nil)
		}
		if prod.Category != "" {
			res.Categories[prod.Category] = prod.Category
		}
	}
	if skipped > 0 {
		p.logger.Warn("skipped feed rows without id", "count", skipped)
	}
	return res, nil
}

func csvToProduct(rec map[string]string) (catalog.Product, bool) {
	id := firstNonEmpty(rec["id"], rec["offer_id"], rec["sku"])
	if id == "" {
		return catalog.Product{}, false
	}
	prod := catalog.Product{
		ID:          id,
		Name:        cleanText(firstNonEmpty(rec["name"], rec["title"])),
		Description: cleanText(rec["description"]),
		URL:         firstNonEmpty(rec["url"], rec["link"]),
		Image:       firstNonEmpty(rec["image"], rec["picture"]),
		Currency:    firstNonEmpty(rec["currency"], "RUB"),
		Category:    rec["category"],
		Brand:       firstNonEmpty(rec["brand"], rec["vendor"]),
		VendorCode:  firstNonEmpty(rec["vendor_code"], rec["vendorcode"]),
		Params:      map[string]string{},
		InStock:     true,
	}
	prod.Price, _ = parsePrice(rec["price"])
	if v, ok := parsePrice(firstNonEmpty(rec["old_price"], rec["oldprice"])); ok {
		prod.OldPrice = &v
	}
	if flag := firstNonEmpty(rec["in_stock"], rec["available"]); flag != "" {
		prod.InStock = parseStockFlag(flag)
	}
	if rec["quantity"] != "" {
		if q, err := strconv.Atoi(rec["quantity"]); err == nil {
			prod.Quantity = &q
		}
	}
	if prod.Image != "" {
		prod.Images = []string{prod.Image}
	}
	prod.RecomputeDiscount()
	return prod, true
}

// charsetReader decodes the encodings commerce feeds actually declare.
// UTF-8 passes through untouched.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "windows-1251", "cp1251", "win-1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "koi8-r":
		return charmap.KOI8R.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported feed charset %q", charset)
	}
}

// parsePrice normalizes price text: comma decimal separators, embedded
// spaces and currency suffixes all appear in the wild. The boolean
// reports whether the text held a usable number.
func parsePrice(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseStockFlag accepts the stock markers feeds send, including the
// Russian "в наличии" and Google's "in stock".
func parseStockFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "в наличии", "available", "in stock":
		return true
	}
	return false
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// cleanText strips markup and collapses whitespace runs. Feed names and
// descriptions routinely embed HTML.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(values ...string) string {
	parts := values[:0]
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// jsonString returns the first present key as a string. Numbers are
// rendered as-is so numeric ids survive.
func jsonString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// jsonFloat returns the first present key as a float. String values go
// through the price normalizer.
func jsonFloat(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, ok := parsePrice(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func jsonBool(obj map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case bool:
			return v, true
		case string:
			if v != "" {
				return parseStockFlag(v), true
			}
		}
	}
	return false, false
}
