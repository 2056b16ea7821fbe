package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

const ymlFixture = `<?xml version="1.0" encoding="UTF-8"?>
<yml_catalog date="2024-01-15 12:00">
  <shop>
    <name>Спорт Мастер</name>
    <categories>
      <category id="1">Обувь</category>
      <category id="2">Одежда</category>
    </categories>
    <offers>
      <offer id="sku-1" available="true">
        <name>Кроссовки Nike Air Max</name>
        <url>https://shop.example/p/sku-1</url>
        <price>7 990,50</price>
        <oldprice>9990</oldprice>
        <currencyId>RUB</currencyId>
        <categoryId>1</categoryId>
        <picture>https://img.example/1a.jpg</picture>
        <picture>https://img.example/1b.jpg</picture>
        <vendor>Nike</vendor>
        <vendorCode>NK-123</vendorCode>
        <description>&lt;p&gt;Лёгкие   кроссовки&lt;/p&gt;</description>
        <param name="Цвет">белый</param>
        <param name="Размер">42</param>
      </offer>
      <offer id="sku-2" available="false">
        <name>Футболка базовая</name>
        <price>990</price>
        <categoryId>2</categoryId>
        <quantity>7</quantity>
      </offer>
      <offer>
        <name>Потерянный товар</name>
        <price>100</price>
      </offer>
    </offers>
  </shop>
</yml_catalog>`

func TestParser_Parse_YMLCatalog(t *testing.T) {
	p := NewParser(nil, 0)

	res, err := p.Parse([]byte(ymlFixture))
	require.NoError(t, err)

	assert.Equal(t, "Спорт Мастер", res.ShopName)
	assert.Equal(t, map[string]string{"1": "Обувь", "2": "Одежда"}, res.Categories)
	require.Len(t, res.Products, 2, "offer without id must be skipped")

	first := res.Products[0]
	assert.Equal(t, "sku-1", first.ID)
	assert.Equal(t, "Кроссовки Nike Air Max", first.Name)
	assert.Equal(t, "https://shop.example/p/sku-1", first.URL)
	assert.Equal(t, 7990.50, first.Price)
	require.NotNil(t, first.OldPrice)
	assert.Equal(t, 9990.0, *first.OldPrice)
	require.NotNil(t, first.Discount)
	assert.Equal(t, 20, *first.Discount)
	assert.Equal(t, "RUB", first.Currency)
	assert.Equal(t, "Обувь", first.Category)
	assert.True(t, first.InStock)
	assert.Equal(t, "https://img.example/1a.jpg", first.Image)
	assert.Len(t, first.Images, 2)
	assert.Equal(t, "Nike", first.Brand)
	assert.Equal(t, "NK-123", first.VendorCode)
	assert.Equal(t, "Лёгкие кроссовки", first.Description, "markup stripped, whitespace collapsed")
	assert.Equal(t, map[string]string{"Цвет": "белый", "Размер": "42"}, first.Params)

	second := res.Products[1]
	assert.Equal(t, "sku-2", second.ID)
	assert.False(t, second.InStock)
	assert.Equal(t, "Одежда", second.Category)
	require.NotNil(t, second.Quantity)
	assert.Equal(t, 7, *second.Quantity)
	assert.Nil(t, second.OldPrice)
}

func TestParser_Parse_NameFallsBackToVendorModel(t *testing.T) {
	feed := `<yml_catalog><shop><offers>
      <offer id="m-1">
        <typePrefix>Смартфон</typePrefix>
        <vendor>Apple</vendor>
        <model>iPhone 15</model>
        <price>79990</price>
      </offer>
    </offers></shop></yml_catalog>`

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Смартфон Apple iPhone 15", res.Products[0].Name)
	assert.Equal(t, "Apple", res.Products[0].Brand)
}

func TestParser_Parse_MissingAvailableMeansInStock(t *testing.T) {
	feed := `<yml_catalog><shop><offers>
      <offer id="a-1"><name>Товар</name><price>100</price></offer>
    </offers></shop></yml_catalog>`

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.True(t, res.Products[0].InStock)
}

func TestParser_Parse_GoogleMerchantItems(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss xmlns:g="http://base.google.com/ns/1.0" version="2.0">
  <channel>
    <item>
      <g:id>g-1</g:id>
      <g:title>Наушники Sony WH-1000XM5</g:title>
      <g:description>Беспроводные наушники</g:description>
      <g:link>https://shop.example/p/g-1</g:link>
      <g:image_link>https://img.example/g1.jpg</g:image_link>
      <g:price>29990 RUB</g:price>
      <g:availability>in stock</g:availability>
      <g:brand>Sony</g:brand>
      <g:product_type>Электроника</g:product_type>
    </item>
  </channel>
</rss>`

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	prod := res.Products[0]
	assert.Equal(t, "g-1", prod.ID)
	assert.Equal(t, "Наушники Sony WH-1000XM5", prod.Name)
	assert.Equal(t, "https://shop.example/p/g-1", prod.URL)
	assert.Equal(t, 29990.0, prod.Price)
	assert.True(t, prod.InStock)
	assert.Equal(t, "Sony", prod.Brand)
	assert.Equal(t, "Электроника", prod.Category)
	assert.Equal(t, "https://img.example/g1.jpg", prod.Image)
}

func TestParser_Parse_Windows1251Declared(t *testing.T) {
	raw := `<?xml version="1.0" encoding="windows-1251"?>
<yml_catalog><shop>
  <name>Магазин</name>
  <offers>
    <offer id="w-1"><name>Пылесос</name><price>5990</price></offer>
  </offers>
</shop></yml_catalog>`
	encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(raw))
	require.NoError(t, err)

	res, err := NewParser(nil, 0).Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Магазин", res.ShopName)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Пылесос", res.Products[0].Name)
}

func TestParser_Parse_JSONWrappedProducts(t *testing.T) {
	feed := `{
	  "shop_name": "Demo Shop",
	  "products": [
	    {"id": 1, "name": "Ботинки зимние", "price": "1 990,00", "old_price": 2500,
	     "in_stock": true, "category": "Обувь", "brand": "Ecco",
	     "images": ["https://img.example/b1.jpg"],
	     "params": {"Цвет": "чёрный"}},
	    {"name": "Без идентификатора", "price": 100}
	  ]
	}`

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	assert.Equal(t, "Demo Shop", res.ShopName)
	require.Len(t, res.Products, 1, "item without id must be skipped")

	prod := res.Products[0]
	assert.Equal(t, "1", prod.ID, "numeric ids decode as strings")
	assert.Equal(t, 1990.0, prod.Price)
	require.NotNil(t, prod.OldPrice)
	assert.Equal(t, 2500.0, *prod.OldPrice)
	require.NotNil(t, prod.Discount)
	assert.Equal(t, 20, *prod.Discount)
	assert.Equal(t, "https://img.example/b1.jpg", prod.Image)
	assert.Equal(t, map[string]string{"Цвет": "чёрный"}, prod.Params)
	assert.Contains(t, res.Categories, "Обувь")
}

func TestParser_Parse_JSONTopLevelArray(t *testing.T) {
	feed := `[{"id": "a", "name": "Первый", "price": 10},
	          {"id": "b", "name": "Второй", "price": 20, "available": "false"}]`

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.True(t, res.Products[0].InStock)
	assert.False(t, res.Products[1].InStock)
}

func TestParser_Parse_CSVWithHeader(t *testing.T) {
	feed := "id,name,price,old_price,category,brand,in_stock,quantity\n" +
		"1,Мяч футбольный,1290,1500,Спорт,Select,true,12\n" +
		",Без идентификатора,100,,,,,\n"

	res, err := NewParser(nil, 0).Parse([]byte(feed))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	prod := res.Products[0]
	assert.Equal(t, "1", prod.ID)
	assert.Equal(t, "Мяч футбольный", prod.Name)
	assert.Equal(t, 1290.0, prod.Price)
	assert.Equal(t, "Спорт", prod.Category)
	assert.Equal(t, "Select", prod.Brand)
	assert.True(t, prod.InStock)
	require.NotNil(t, prod.Quantity)
	assert.Equal(t, 12, *prod.Quantity)
}

func TestParser_Parse_ProductCapRejectsFeed(t *testing.T) {
	feed := `<yml_catalog><shop><offers>
      <offer id="1"><name>Один</name><price>1</price></offer>
      <offer id="2"><name>Два</name><price>2</price></offer>
    </offers></shop></yml_catalog>`

	_, err := NewParser(nil, 1).Parse([]byte(feed))
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeFeedTooLarge, verrors.GetCode(err))
}

func TestParser_Parse_MalformedXML(t *testing.T) {
	_, err := NewParser(nil, 0).Parse([]byte(`<yml_catalog><offer id="1"><name>x</offer>`))
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeFeedInvalid, verrors.GetCode(err))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXML, DetectFormat([]byte("  <?xml version=\"1.0\"?><yml_catalog/>")))
	assert.Equal(t, FormatJSON, DetectFormat([]byte(`{"products": []}`)))
	assert.Equal(t, FormatJSON, DetectFormat([]byte(`[]`)))
	assert.Equal(t, FormatCSV, DetectFormat([]byte("id,name,price\n1,x,2\n")))
	assert.Equal(t, FormatXML, DetectFormat(nil), "XML is the default")
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1990", 1990, true},
		{"1 990,50", 1990.50, true},
		{"29990 RUB", 29990, true},
		{"12.5", 12.5, true},
		{"", 0, false},
		{"бесплатно", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePrice(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Лёгкие кроссовки", cleanText("<p>Лёгкие   кроссовки</p>"))
	assert.Equal(t, "", cleanText(""))
	assert.Equal(t, "a b", cleanText("a\n\t b"))
}
