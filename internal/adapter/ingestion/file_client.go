package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// recordDTO is the wire shape of one raw record
type recordDTO struct {
	Kind           string          `json:"kind"`
	Source         string          `json:"source"`
	Target         string          `json:"target"`
	Value          decimal.Decimal `json:"value"`
	Date           string          `json:"date"`
	Pool           string          `json:"pool"`
	AssetClass     string          `json:"asset_class"`
	SubAssetClass  string          `json:"sub_asset_class"`
	Sleeve         string          `json:"sleeve"`
	FamilyBranch   string          `json:"family_branch"`
	Classification string          `json:"classification"`
}

type fundDTO struct {
	Fund          string `json:"fund"`
	Pool          string `json:"pool"`
	AssetClass    string `json:"asset_class"`
	SubAssetClass string `json:"sub_asset_class"`
	Sleeve        string `json:"sleeve"`
	Consolidator  string `json:"consolidator"`
}

type benchmarkDTO struct {
	Name   string           `json:"name"`
	Month  string           `json:"month"`
	Return decimal.Decimal  `json:"return"`
	ITD    *decimal.Decimal `json:"itd"`
}

type linkDTO struct {
	Benchmark string `json:"benchmark"`
	Level     string `json:"level"`
	Value     string `json:"value"`
}

// FileClient reads tables from a directory of JSON (array) or JSONL files,
// named <table>.json or <table>.jsonl
type FileClient struct {
	dir string
	log zerolog.Logger
}

var _ domain.IngestionClient = (*FileClient)(nil)

// NewFileClient creates a new FileClient instance
func NewFileClient(dir string, log zerolog.Logger) *FileClient {
	return &FileClient{
		dir: dir,
		log: log.With().Str("component", "file_ingestion").Str("dir", dir).Logger(),
	}
}

// FetchNew reads the current content of a record table.
// A missing file yields an empty table; malformed lines are skipped with a warning.
func (c *FileClient) FetchNew(ctx context.Context, table string) ([]domain.RawRecord, error) {
	var records []domain.RawRecord
	err := c.decode(ctx, table, func(raw []byte) error {
		var dto recordDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return err
		}
		rec, err := toRecord(table, dto)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("table", table).Int("records", len(records)).Msg("table fetched")
	return records, nil
}

// Funds reads funds.json(l)
func (c *FileClient) Funds(ctx context.Context) ([]domain.FundMetadata, error) {
	var funds []domain.FundMetadata
	err := c.decode(ctx, "funds", func(raw []byte) error {
		var dto fundDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return err
		}
		if strings.TrimSpace(dto.Fund) == "" {
			return errors.New("missing fund name")
		}
		funds = append(funds, domain.FundMetadata(dto))
		return nil
	})
	return funds, err
}

// Benchmarks reads benchmarks.json(l)
func (c *FileClient) Benchmarks(ctx context.Context) ([]domain.Benchmark, error) {
	var benchmarks []domain.Benchmark
	err := c.decode(ctx, "benchmarks", func(raw []byte) error {
		var dto benchmarkDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return err
		}
		month, err := parseDate(dto.Month)
		if err != nil {
			return err
		}
		benchmarks = append(benchmarks, domain.Benchmark{
			Name:   dto.Name,
			Month:  domain.MonthStart(month),
			Return: dto.Return,
			ITD:    dto.ITD,
		})
		return nil
	})
	return benchmarks, err
}

// Links reads benchmark_links.json(l)
func (c *FileClient) Links(ctx context.Context) ([]domain.BenchmarkLink, error) {
	var links []domain.BenchmarkLink
	err := c.decode(ctx, "benchmark_links", func(raw []byte) error {
		var dto linkDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return err
		}
		links = append(links, domain.BenchmarkLink(dto))
		return nil
	})
	return links, err
}

// decode locates the file of name and hands every element to fn.
// Elements fn rejects are logged and skipped.
func (c *FileClient) decode(ctx context.Context, name string, fn func(raw []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, jsonl, err := c.locate(name)
	if err != nil {
		return err
	}
	if path == "" {
		c.log.Debug().Str("table", name).Msg("no input file, table is empty")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var elements [][]byte
	if jsonl {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			elements = append(elements, append([]byte(nil), line...))
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to scan %s: %w", path, err)
		}
	} else {
		var array []json.RawMessage
		if err := json.Unmarshal(data, &array); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		for _, el := range array {
			elements = append(elements, el)
		}
	}

	for i, el := range elements {
		if err := fn(el); err != nil {
			c.log.Warn().Err(err).Str("table", name).Int("index", i).Msg("skipping malformed input")
		}
	}
	return nil
}

func (c *FileClient) locate(name string) (string, bool, error) {
	for _, candidate := range []struct {
		ext   string
		jsonl bool
	}{{".jsonl", true}, {".json", false}} {
		path := filepath.Join(c.dir, name+candidate.ext)
		if _, err := os.Stat(path); err == nil {
			return path, candidate.jsonl, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", false, nil
}

func toRecord(table string, dto recordDTO) (domain.RawRecord, error) {
	date, err := parseDate(dto.Date)
	if err != nil {
		return domain.RawRecord{}, err
	}

	kind := domain.RecordKind(strings.ToUpper(dto.Kind))
	if kind == "" {
		switch table {
		case domain.TablePositions:
			kind = domain.RecordKindPosition
		case domain.TableTransactions:
			kind = domain.RecordKindTransaction
		}
	}

	return domain.RawRecord{
		Table:          table,
		Kind:           kind,
		Source:         dto.Source,
		Target:         dto.Target,
		Value:          dto.Value,
		Date:           date,
		Pool:           dto.Pool,
		AssetClass:     dto.AssetClass,
		SubAssetClass:  dto.SubAssetClass,
		Sleeve:         dto.Sleeve,
		FamilyBranch:   dto.FamilyBranch,
		Classification: strings.ToLower(dto.Classification),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
