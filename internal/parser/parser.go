// Package parser extracts memory-module attributes and prices from vendor option labels.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

// Default markers used by the vendor page.
const (
	DefaultCurrencyMarker    = "$"
	DefaultOutOfStockMarker  = "缺貨"
	DefaultDualChannelMarker = "雙q"
)

var (
	capacityPattern = regexp.MustCompile(`\d+GB`)
	// Speed is written either "DDR5-4800" or "DDR5 4800".
	speedPattern   = regexp.MustCompile(`DDR(\d)[-\s](\d+)`)
	latencyPattern = regexp.MustCompile(`/CL(\d+)`)
)

// Config holds the marker tokens the parser looks for.
type Config struct {
	CurrencyMarker    string
	OutOfStockMarker  string
	DualChannelMarker string
}

// Parser maps raw labels to attribute records. The zero value is not usable; call New.
type Parser struct {
	cfg          Config
	pricePattern *regexp.Regexp
}

// New builds a Parser, filling empty markers with the defaults.
func New(cfg Config) *Parser {
	if cfg.CurrencyMarker == "" {
		cfg.CurrencyMarker = DefaultCurrencyMarker
	}
	if cfg.OutOfStockMarker == "" {
		cfg.OutOfStockMarker = DefaultOutOfStockMarker
	}
	if cfg.DualChannelMarker == "" {
		cfg.DualChannelMarker = DefaultDualChannelMarker
	}
	return &Parser{
		cfg:          cfg,
		pricePattern: regexp.MustCompile(regexp.QuoteMeta(cfg.CurrencyMarker) + `(\d[\d,]*)`),
	}
}

var defaultParser = New(Config{})

// Parse runs the default parser.
func Parse(label, groupLabel string) ram.Attributes {
	return defaultParser.Parse(label, groupLabel)
}

// Parse never fails: every field falls back to a sentinel when its rule does not match.
func (p *Parser) Parse(label, groupLabel string) ram.Attributes {
	return ram.Attributes{
		Brand:         brand(label),
		Capacity:      firstMatch(capacityPattern, label),
		Speed:         speed(label),
		Latency:       latency(label),
		IsDualChannel: strings.Contains(groupLabel, p.cfg.DualChannelMarker),
		Price:         p.price(label),
		Status:        p.status(label),
	}
}

func (p *Parser) price(label string) int {
	m := p.pricePattern.FindStringSubmatch(label)
	if m == nil {
		return ram.PriceUnknown
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || v > math.MaxInt32 {
		// Price columns are 32-bit.
		return ram.PriceUnknown
	}
	return v
}

func (p *Parser) status(label string) ram.Status {
	if strings.Contains(label, p.cfg.OutOfStockMarker) {
		return ram.StatusOutOfStock
	}
	return ram.StatusInStock
}

func brand(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ram.Unparsed
	}
	return fields[0]
}

func speed(label string) string {
	m := speedPattern.FindStringSubmatch(label)
	if m == nil {
		return ram.Unparsed
	}
	return "DDR" + m[1] + "-" + m[2]
}

func latency(label string) string {
	m := latencyPattern.FindStringSubmatch(label)
	if m == nil {
		return ram.Unparsed
	}
	return "CL" + m[1]
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindString(s); m != "" {
		return m
	}
	return ram.Unparsed
}
