package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"chart-strategy-lab/internal/domain"
)

// csvHeader is written by WriteCSV and skipped by the readers when present.
var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// ReadCSV reads candles from the file at path into a series with the given
// identity.
func ReadCSV(path, symbol, timeframe string) (*domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadSeriesCSV(f, symbol, timeframe)
}

// ReadSeriesCSV reads candles from r. Rows are
// time,open,high,low,close,volume with the time as RFC3339 or unix
// milliseconds; an optional header row is skipped. A malformed row fails the
// whole read with its line number.
func ReadSeriesCSV(r io.Reader, symbol, timeframe string) (*domain.Series, error) {
	series := domain.NewSeries(symbol, timeframe)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row width is validated per line below

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 && isCSVHeader(rec) {
			continue
		}

		bar, err := parseCSVBar(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		series.Append(bar)
	}

	return series, nil
}

// WriteCSV writes the raw bars of the series to the file at path.
func WriteCSV(path string, series *domain.Series) error {
	return writeCSVFile(path, series, false)
}

// WriteEnrichedCSV writes the bars plus whatever indicator columns the series
// carries: ema_<period> in ascending period order, atr, then bb_upper,
// bb_middle, bb_lower. NaN warm-up cells come out empty.
func WriteEnrichedCSV(path string, series *domain.Series) error {
	return writeCSVFile(path, series, true)
}

func writeCSVFile(path string, series *domain.Series, enriched bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := writeBars(f, series, enriched); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeBars(w io.Writer, series *domain.Series, enriched bool) error {
	n := series.Len()

	header := append([]string(nil), csvHeader...)
	var emaPeriods []int
	hasATR, hasBands := false, false
	if enriched {
		emaPeriods = series.EMAPeriods()
		for _, p := range emaPeriods {
			header = append(header, fmt.Sprintf("ema_%d", p))
		}
		hasATR = len(series.ATR) == n && n > 0
		if hasATR {
			header = append(header, "atr")
		}
		hasBands = len(series.BBUpper) == n && len(series.BBMiddle) == n && len(series.BBLower) == n && n > 0
		if hasBands {
			header = append(header, "bb_upper", "bb_middle", "bb_lower")
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	rec := make([]string, 0, len(header))
	for i := 0; i < n; i++ {
		rec = rec[:0]
		rec = append(rec,
			series.Times[i].UTC().Format(time.RFC3339),
			formatCSVValue(series.Open[i]),
			formatCSVValue(series.High[i]),
			formatCSVValue(series.Low[i]),
			formatCSVValue(series.Close[i]),
			formatCSVValue(series.Volume[i]),
		)
		for _, p := range emaPeriods {
			rec = append(rec, formatCSVValue(series.EMA[p][i]))
		}
		if hasATR {
			rec = append(rec, formatCSVValue(series.ATR[i]))
		}
		if hasBands {
			rec = append(rec,
				formatCSVValue(series.BBUpper[i]),
				formatCSVValue(series.BBMiddle[i]),
				formatCSVValue(series.BBLower[i]),
			)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// AppendBarCSV writes one raw bar in the WriteCSV row format. Used by
// streaming consumers that extend an existing file as candles close.
func AppendBarCSV(w io.Writer, bar domain.Bar) error {
	rec := fmt.Sprintf("%s,%s,%s,%s,%s,%s\n",
		bar.Time.UTC().Format(time.RFC3339),
		formatCSVValue(bar.Open),
		formatCSVValue(bar.High),
		formatCSVValue(bar.Low),
		formatCSVValue(bar.Close),
		formatCSVValue(bar.Volume),
	)
	_, err := io.WriteString(w, rec)
	return err
}

func isCSVHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "time")
}

func parseCSVBar(rec []string) (domain.Bar, error) {
	if len(rec) < 6 {
		return domain.Bar{}, fmt.Errorf("want 6 fields, got %d", len(rec))
	}

	t, err := parseCSVTime(rec[0])
	if err != nil {
		return domain.Bar{}, err
	}

	names := [5]string{"open", "high", "low", "close", "volume"}
	var vals [5]float64
	for i := range vals {
		raw := strings.TrimSpace(rec[i+1])
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%s %q: %w", names[i], raw, err)
		}
		vals[i] = f
	}

	return domain.Bar{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseCSVTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: want RFC3339 or unix ms", raw)
	}
	return t.UTC(), nil
}

func formatCSVValue(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
