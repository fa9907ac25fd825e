// Package billing converts token usage into monetary cost. Non-streamed
// runs carry a vendor-reported cost figure which is used verbatim;
// streamed runs are priced against an external, versioned price table.
package billing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rate holds the per-million-token prices for one model, in USD.
type Rate struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// PriceTable is a versioned mapping from (provider, model) to token
// rates. Tables are immutable after loading.
type PriceTable struct {
	version string
	rates   map[string]Rate
}

// rateKey builds the lookup key for a provider/model pair.
func rateKey(provider, model string) string {
	return provider + "/" + model
}

type priceTableFile struct {
	Version string                         `yaml:"version"`
	Rates   map[string]map[string]rateSpec `yaml:"rates"`
}

// rateSpec carries rates as strings so that no binary floating point
// representation ever enters the monetary path.
type rateSpec struct {
	InputPerMillion  string `yaml:"input_per_million"`
	OutputPerMillion string `yaml:"output_per_million"`
}

// LoadPriceTable reads a price table from a YAML file.
func LoadPriceTable(path string) (*PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading price table: %w", err)
	}
	return ParsePriceTable(data)
}

// ParsePriceTable parses price table YAML.
func ParsePriceTable(data []byte) (*PriceTable, error) {
	var file priceTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing price table: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("price table has no version")
	}

	table := &PriceTable{
		version: file.Version,
		rates:   make(map[string]Rate),
	}
	for provider, models := range file.Rates {
		for model, spec := range models {
			in, err := decimal.NewFromString(spec.InputPerMillion)
			if err != nil {
				return nil, fmt.Errorf("price table %s/%s: bad input rate %q: %w", provider, model, spec.InputPerMillion, err)
			}
			out, err := decimal.NewFromString(spec.OutputPerMillion)
			if err != nil {
				return nil, fmt.Errorf("price table %s/%s: bad output rate %q: %w", provider, model, spec.OutputPerMillion, err)
			}
			if in.IsNegative() || out.IsNegative() {
				return nil, fmt.Errorf("price table %s/%s: negative rate", provider, model)
			}
			table.rates[rateKey(provider, model)] = Rate{
				InputPerMillion:  in,
				OutputPerMillion: out,
			}
		}
	}
	return table, nil
}

// Version returns the table's version string.
func (t *PriceTable) Version() string {
	return t.version
}

// Lookup returns the rate for a provider/model pair.
func (t *PriceTable) Lookup(provider, model string) (Rate, bool) {
	r, ok := t.rates[rateKey(provider, model)]
	return r, ok
}
