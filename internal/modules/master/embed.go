package master

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/stockhunter/stockhunter/internal/domain"
)

//go:embed data/*.csv
var embeddedListings embed.FS

var embeddedFiles = map[domain.Market]string{
	domain.MarketKOSPI:  "data/kospi.csv",
	domain.MarketKOSDAQ: "data/kosdaq.csv",
}

// loadEmbedded reads the packaged CSV fallback for a Korean market. The CSV
// format is code,name,market[,sector]; the sector column is ignored.
func loadEmbedded(market domain.Market) ([]domain.Instrument, error) {
	path, ok := embeddedFiles[market]
	if !ok {
		return nil, fmt.Errorf("%w: no embedded listing for market %s", domain.ErrInvalidInput, market)
	}
	return readListingCSV(path)
}

// loadEmbeddedUS reads the packaged US symbol list, optionally filtered to
// one market.
func loadEmbeddedUS(market domain.Market) ([]domain.Instrument, error) {
	instruments, err := readListingCSV("data/us.csv")
	if err != nil {
		return nil, err
	}
	if market == "" {
		return instruments, nil
	}

	filtered := instruments[:0]
	for _, inst := range instruments {
		if inst.Market == market {
			filtered = append(filtered, inst)
		}
	}
	return filtered, nil
}

func readListingCSV(path string) ([]domain.Instrument, error) {
	f, err := embeddedListings.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded listing %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // sector column is optional

	var instruments []domain.Instrument
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded listing %s: %w", path, err)
		}
		if first {
			first = false
			if strings.EqualFold(record[0], "code") {
				continue
			}
		}
		if len(record) < 3 {
			continue
		}

		name := strings.TrimSpace(record[1])
		instruments = append(instruments, domain.Instrument{
			Code:     strings.TrimSpace(record[0]),
			Name:     name,
			Market:   domain.Market(strings.TrimSpace(record[2])),
			IsETF:    IsETFName(name),
			IsETN:    IsETNName(name),
			IsActive: true,
		})
	}

	return instruments, nil
}
