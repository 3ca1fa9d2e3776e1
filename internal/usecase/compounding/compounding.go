package compounding

import (
	"math"
	"slices"
	"time"

	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// ClampFactor replaces a compound factor that turns negative. Multiplication
// stops once it is reached.
// TODO: confirm the -1.999 floor with the performance team; it is a reporting
// policy rather than a derived figure.
const ClampFactor = -1.999

// DefaultHorizons are the N-year annualization horizons
var DefaultHorizons = []int{1, 3, 5, 10}

// Point is one month of a node's series
type Point struct {
	Month  time.Time
	Return float64 // Percent
	NAV    float64
}

// Options configures compounding
type Options struct {
	Horizons []int // Years; defaults to DefaultHorizons
}

// Metrics holds period-end composite returns in percent.
// A nil field or missing horizon means the figure is not available.
type Metrics struct {
	MTD        *float64
	QTD        *float64
	YTD        *float64
	Annualized map[int]float64 // Horizon in years -> annualized return
	ITD        *float64
}

// Compound returns the product of (1 + r/100) over returns. A running factor
// that goes negative is clamped to ClampFactor.
func Compound(returns []float64) float64 {
	factor := 1.0
	for _, r := range returns {
		factor *= 1 + r/100
		if factor < 0 {
			return ClampFactor
		}
	}
	return factor
}

// Calculate derives MTD, QTD, YTD, N-year and ITD from a monthly series.
// Logic:
//   - Only months at or before periodEnd count; a zero periodEnd means the latest month
//   - QTD and YTD compound the months of the current quarter/year that are present
//   - N-year requires every one of the trailing 12*N months and skips not-yet-active funds
//   - ITD annualizes the whole history over its month count, falling back to MTD below two months
func Calculate(series []Point, periodEnd time.Time, opts Options) Metrics {
	horizons := opts.Horizons
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	m := Metrics{Annualized: make(map[int]float64)}

	points := normalize(series, periodEnd)
	if len(points) == 0 {
		return m
	}
	last := points[len(points)-1]

	mtd := last.Return
	m.MTD = &mtd

	quarterStart := time.Date(last.Month.Year(), last.Month.Month()-(last.Month.Month()-1)%3, 1, 0, 0, 0, 0, time.UTC)
	m.QTD = periodReturn(since(points, quarterStart))
	yearStart := time.Date(last.Month.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	m.YTD = periodReturn(since(points, yearStart))

	for _, years := range horizons {
		if v, ok := annualized(points, last.Month, years); ok {
			m.Annualized[years] = v
		}
	}

	m.ITD = inception(points)
	return m
}

// normalize drops months after periodEnd and orders the rest ascending, keeping
// the last point supplied for a duplicated month.
func normalize(series []Point, periodEnd time.Time) []Point {
	byMonth := make(map[time.Time]Point, len(series))
	var end time.Time
	if !periodEnd.IsZero() {
		end = domain.MonthStart(periodEnd)
	}
	for _, p := range series {
		p.Month = domain.MonthStart(p.Month)
		if !end.IsZero() && p.Month.After(end) {
			continue
		}
		byMonth[p.Month] = p
	}
	points := make([]Point, 0, len(byMonth))
	for _, p := range byMonth {
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b Point) int { return a.Month.Compare(b.Month) })
	return points
}

func since(points []Point, start time.Time) []float64 {
	var returns []float64
	for _, p := range points {
		if !p.Month.Before(start) {
			returns = append(returns, p.Return)
		}
	}
	return returns
}

func periodReturn(returns []float64) *float64 {
	if len(returns) == 0 {
		return nil
	}
	factor := Compound(returns)
	if factor <= 0 {
		return nil
	}
	v := (factor - 1) * 100
	return &v
}

// annualized compounds exactly the trailing 12*years months ending at end.
// The horizon is withheld when the NAV at the last month is zero and any
// month in the window returned exactly zero.
func annualized(points []Point, end time.Time, years int) (float64, bool) {
	if years <= 0 {
		return 0, false
	}
	want := 12 * years
	first := end.AddDate(0, -(want - 1), 0)

	returns := make([]float64, 0, want)
	var last Point
	for _, p := range points {
		if p.Month.Before(first) {
			continue
		}
		returns = append(returns, p.Return)
		last = p
	}
	if len(returns) != want {
		return 0, false
	}
	if last.NAV == 0 && slices.Contains(returns, 0) {
		return 0, false
	}

	factor := Compound(returns)
	if factor <= 0 {
		return 0, false
	}
	return (math.Pow(factor, 1/float64(years)) - 1) * 100, true
}

func inception(points []Point) *float64 {
	if len(points) < 2 {
		v := points[len(points)-1].Return
		return &v
	}
	returns := make([]float64, 0, len(points))
	for _, p := range points {
		returns = append(returns, p.Return)
	}
	factor := Compound(returns)
	if factor <= 0 {
		return nil
	}
	first, last := points[0].Month, points[len(points)-1].Month
	elapsed := (last.Year()-first.Year())*12 + int(last.Month()-first.Month()) + 1
	v := (math.Pow(factor, 12/float64(elapsed)) - 1) * 100
	return &v
}
