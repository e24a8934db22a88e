package master

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/stockhunter/stockhunter/internal/domain"
)

// Fixed-width layout of the exchange listing files: a 9-byte short code
// (6-digit code left-aligned), a 12-byte standard code, then a 40-byte name.
const (
	listingCodeWidth  = 9
	listingISINWidth  = 12
	listingNameOffset = listingCodeWidth + listingISINWidth
	listingNameWidth  = 40
	listingMinLine    = listingNameOffset + listingNameWidth
)

// MarketFromFilename infers the market a listing file describes.
func MarketFromFilename(filename string) (domain.Market, bool) {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "kospi"):
		return domain.MarketKOSPI, true
	case strings.Contains(lower, "kosdaq"):
		return domain.MarketKOSDAQ, true
	default:
		return "", false
	}
}

// ParseListingFile parses one fixed-width exchange listing file into
// instruments. Lines too short for the name field, or whose code is not a
// six-digit number, are skipped.
func ParseListingFile(filename string, data []byte) (domain.Market, []domain.Instrument, error) {
	market, ok := MarketFromFilename(filename)
	if !ok {
		return "", nil, fmt.Errorf("%w: cannot infer market from filename %q", domain.ErrInvalidInput, filename)
	}

	var instruments []domain.Instrument

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) < listingMinLine {
			continue
		}

		code := strings.TrimSpace(string(line[:listingCodeWidth]))
		if len(code) != 6 || !isNumeric(code) {
			continue
		}

		name := strings.TrimSpace(string(line[listingNameOffset : listingNameOffset+listingNameWidth]))
		if name == "" {
			continue
		}

		instruments = append(instruments, domain.Instrument{
			Code:     code,
			Name:     name,
			Market:   market,
			IsETF:    IsETFName(name),
			IsETN:    IsETNName(name),
			IsActive: true,
		})
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to read listing file %q: %w", filename, err)
	}

	if len(instruments) == 0 {
		return "", nil, fmt.Errorf("%w: no instruments parsed from %q", domain.ErrInvalidInput, filename)
	}

	return market, instruments, nil
}

// etfIssuerPrefixes are the brand names Korean ETF issuers put in front of
// every fund name. The listing files carry no instrument-type flag, so the
// name is the only signal.
var etfIssuerPrefixes = []string{
	"KODEX", "TIGER", "KBSTAR", "ARIRANG", "HANARO",
	"SOL", "ACE", "KOSEF", "PLUS", "RISE", "WON",
}

// IsETFName reports whether a display name looks like an ETF.
func IsETFName(name string) bool {
	upper := strings.ToUpper(name)
	if strings.Contains(upper, "ETF") {
		return true
	}
	for _, prefix := range etfIssuerPrefixes {
		if strings.HasPrefix(upper, prefix+" ") || upper == prefix {
			return true
		}
	}
	return false
}

// IsETNName reports whether a display name looks like an ETN.
func IsETNName(name string) bool {
	return strings.Contains(strings.ToUpper(name), "ETN")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
