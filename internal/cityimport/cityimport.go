// Package cityimport loads the reference city table from CSV.
package cityimport

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrMissingColumn = errors.New("required column missing")
	ErrInvalidRow    = errors.New("invalid row")
)

// Header names, with the spreadsheet export's names accepted as aliases.
var columnAliases = map[string]string{
	"name":     "name",
	"cityname": "name",
	"city":     "name",
	"code":     "code",
	"citycode": "code",
	"area":     "area",
	"region":   "region",
}

var requiredColumns = []string{"name", "region"}

// Replacer swaps the whole city table.
type Replacer interface {
	ReplaceAll(ctx context.Context, cities []domain.City) (int, error)
}

// Parse reads cities from CSV with a header row. Blank rows are skipped;
// a row without a name or a name seen twice fails the whole file.
func Parse(r io.Reader) ([]domain.City, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if name, ok := columnAliases[key]; ok {
			if _, seen := columns[name]; !seen {
				columns[name] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var cities []domain.City
	seen := make(map[string]int)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		city := domain.City{
			Name:   field(record, "name"),
			Code:   field(record, "code"),
			Area:   field(record, "area"),
			Region: field(record, "region"),
		}
		if city.Name == "" {
			return nil, fmt.Errorf("%w: line %d: name is required", ErrInvalidRow, line)
		}
		key := strings.ToLower(city.Name)
		if first, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: line %d: %q already defined on line %d", ErrInvalidRow, line, city.Name, first)
		}
		seen[key] = line
		cities = append(cities, city)
	}

	if len(cities) == 0 {
		return nil, ErrEmptyFile
	}
	return cities, nil
}

// Import parses r and replaces the city table with its rows.
func Import(ctx context.Context, r io.Reader, repo Replacer, logger *otelzap.Logger) (int, error) {
	cities, err := Parse(r)
	if err != nil {
		return 0, err
	}
	n, err := repo.ReplaceAll(ctx, cities)
	if err != nil {
		return 0, fmt.Errorf("replacing cities: %w", err)
	}
	logger.Ctx(ctx).Info("Imported cities", zap.Int("count", n))
	return n, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
