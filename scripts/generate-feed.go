//go:build ignore

// Package main generates a synthetic YML catalog for load testing.
// Usage: go run scripts/generate-feed.go -offers 50000 -output testdata/feed.xml
//
// The output is a valid yml_catalog document that `vitrina feed load`
// accepts, sized by the -offers flag. Handy together with
// --profile-cpu for finding parser and indexing hot spots.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numOffers = flag.Int("offers", 10000, "Number of offers to generate")
	output    = flag.String("output", "testdata/feed.xml", "Output file")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type category struct {
	id    int
	name  string
	nouns []string
}

var categories = []category{
	{1, "Кроссовки", []string{"Кроссовки беговые", "Кроссовки баскетбольные", "Кроссовки повседневные"}},
	{2, "Ботинки", []string{"Ботинки зимние", "Ботинки треккинговые", "Ботинки кожаные"}},
	{3, "Футболки", []string{"Футболка хлопковая", "Футболка спортивная", "Футболка базовая"}},
	{4, "Куртки", []string{"Куртка пуховая", "Куртка ветрозащитная", "Куртка демисезонная"}},
	{5, "Наушники", []string{"Наушники беспроводные", "Наушники накладные", "Наушники спортивные"}},
	{6, "Рюкзаки", []string{"Рюкзак городской", "Рюкзак туристический", "Рюкзак детский"}},
}

var vendors = []string{"Nike", "Adidas", "Puma", "Asics", "New Balance", "Reebok", "Salomon", "Columbia"}

var modifiers = []string{"Pro", "Lite", "Max", "Classic", "Ultra", "Air", "Flex", "GTX"}

var colors = []string{"чёрный", "белый", "синий", "красный", "серый", "зелёный"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if dir := filepath.Dir(*output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)

	fmt.Fprintln(w, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintln(w, `<yml_catalog date="2025-01-01 00:00">`)
	fmt.Fprintln(w, `  <shop>`)
	fmt.Fprintln(w, `    <name>Нагрузочный магазин</name>`)
	fmt.Fprintln(w, `    <categories>`)
	for _, c := range categories {
		fmt.Fprintf(w, "      <category id=\"%d\">%s</category>\n", c.id, c.name)
	}
	fmt.Fprintln(w, `    </categories>`)
	fmt.Fprintln(w, `    <offers>`)

	for i := 1; i <= *numOffers; i++ {
		writeOffer(w, rng, i)
	}

	fmt.Fprintln(w, `    </offers>`)
	fmt.Fprintln(w, `  </shop>`)
	fmt.Fprintln(w, `</yml_catalog>`)

	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}

	info, err := os.Stat(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stat: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d offers (%.1f MB) to %s\n",
		*numOffers, float64(info.Size())/(1024*1024), *output)
}

func writeOffer(w *bufio.Writer, rng *rand.Rand, n int) {
	cat := categories[rng.Intn(len(categories))]
	vendor := vendors[rng.Intn(len(vendors))]
	name := fmt.Sprintf("%s %s %s %d",
		cat.nouns[rng.Intn(len(cat.nouns))],
		vendor,
		modifiers[rng.Intn(len(modifiers))],
		100+rng.Intn(900))

	// Prices end in 90 the way shop feeds really do.
	price := 490 + rng.Intn(200)*100
	available := rng.Float64() < 0.9

	fmt.Fprintf(w, "      <offer id=\"sku-%d\" available=\"%t\">\n", n, available)
	fmt.Fprintf(w, "        <name>%s</name>\n", name)
	fmt.Fprintf(w, "        <url>https://shop.example/p/sku-%d</url>\n", n)
	fmt.Fprintf(w, "        <price>%d</price>\n", price)
	if rng.Float64() < 0.3 {
		fmt.Fprintf(w, "        <oldprice>%d</oldprice>\n", price+1000+rng.Intn(30)*100)
	}
	fmt.Fprintf(w, "        <currencyId>RUB</currencyId>\n")
	fmt.Fprintf(w, "        <categoryId>%d</categoryId>\n", cat.id)
	fmt.Fprintf(w, "        <picture>https://img.example/%d.jpg</picture>\n", n)
	fmt.Fprintf(w, "        <vendor>%s</vendor>\n", vendor)
	fmt.Fprintf(w, "        <vendorCode>%s-%05d</vendorCode>\n", vendor[:2], n)
	fmt.Fprintf(w, "        <param name=\"Цвет\">%s</param>\n", colors[rng.Intn(len(colors))])
	fmt.Fprintf(w, "      </offer>\n")
}
