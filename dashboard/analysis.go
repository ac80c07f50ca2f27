package dashboard

import (
	"errors"
	"fmt"
	"sort"
)

// Checkout labels
const (
	LabelOnTime     = "In time or in advance"
	LabelLate       = "Late"
	LabelNoPrevious = "no previous renting"
)

// Checkin type filters
const (
	CheckinAll     = "all"
	CheckinMobile  = "mobile"
	CheckinConnect = "connect"
)

const (
	// DefaultTimeDelta replaces a missing time delta with the previous rental (24h).
	DefaultTimeDelta = 1440
	// MaxMinutes bounds the delay histograms and the threshold simulation (12h).
	MaxMinutes = 720
	// MaxBins bounds the histogram resolution to one bin per minute.
	MaxBins    = MaxMinutes
	stateEnded = "ended"
)

// ErrInvalidFilter is returned for an unknown checkin type or threshold
var ErrInvalidFilter = errors.New("invalid dashboard filter")

// Enriched is a rental joined with the rental that preceded it on the same car
type Enriched struct {
	Rental
	DelayMinutes        float64  `json:"delay_minutes"`
	Checkout            string   `json:"checkout"`
	PreviousCheckinType string   `json:"previous_checkin_type,omitempty"`
	PreviousState       string   `json:"previous_state,omitempty"`
	PreviousDelay       *float64 `json:"previous_delay_minutes"`
	PreviousCheckout    string   `json:"previous_checkout"`
	TimeDeltaMinutes    float64  `json:"time_delta_minutes"`
	RealTimeDelta       *float64 `json:"real_time_delta_minutes"`
}

// Analysis holds the enriched dataset. It is built once and only read afterwards.
type Analysis struct {
	rows []Enriched
}

// NewAnalysis enriches rentals
func NewAnalysis(rentals []Rental) *Analysis {
	byID := make(map[int64]*Rental, len(rentals))
	for i := range rentals {
		byID[rentals[i].RentalID] = &rentals[i]
	}

	rows := make([]Enriched, len(rentals))
	for i, r := range rentals {
		e := Enriched{Rental: r, TimeDeltaMinutes: DefaultTimeDelta}
		if r.Delay != nil {
			e.DelayMinutes = *r.Delay
		}
		e.Checkout = checkoutLabel(e.DelayMinutes)
		e.PreviousCheckout = LabelNoPrevious

		if r.PreviousRentalID != nil {
			if prev, ok := byID[*r.PreviousRentalID]; ok {
				var d float64
				if prev.Delay != nil {
					d = *prev.Delay
				}
				e.PreviousCheckinType = prev.CheckinType
				e.PreviousState = prev.State
				e.PreviousDelay = &d
				e.PreviousCheckout = checkoutLabel(d)
			}
		}
		if r.TimeDelta != nil {
			e.TimeDeltaMinutes = *r.TimeDelta
		}
		if e.PreviousDelay != nil {
			rt := e.TimeDeltaMinutes - *e.PreviousDelay
			e.RealTimeDelta = &rt
		}
		rows[i] = e
	}
	return &Analysis{rows: rows}
}

func checkoutLabel(delay float64) string {
	if delay <= 0 {
		return LabelOnTime
	}
	return LabelLate
}

// Rows returns the enriched rows
func (a *Analysis) Rows() []Enriched { return a.rows }

func (a *Analysis) filter(checkinType string) ([]Enriched, error) {
	switch checkinType {
	case "", CheckinAll:
		return a.rows, nil
	case CheckinMobile, CheckinConnect:
	default:
		return nil, fmt.Errorf("%w: checkin type %q", ErrInvalidFilter, checkinType)
	}
	out := make([]Enriched, 0, len(a.rows))
	for _, r := range a.rows {
		if r.CheckinType == checkinType {
			out = append(out, r)
		}
	}
	return out, nil
}

// Summary counts distinct cars and rentals
type Summary struct {
	Cars    int `json:"cars"`
	Rentals int `json:"rentals"`
}

func (a *Analysis) Summary() Summary {
	cars := make(map[int64]struct{})
	rentals := make(map[int64]struct{})
	for _, r := range a.rows {
		cars[r.CarID] = struct{}{}
		rentals[r.RentalID] = struct{}{}
	}
	return Summary{Cars: len(cars), Rentals: len(rentals)}
}

// Share is the number of rentals in one category
type Share struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// Shares are the category proportions of the filtered rentals
type Shares struct {
	CheckinType string `json:"checkin_type"`
	Total       int    `json:"total"`
	// Checkin is computed over every rental regardless of the filter.
	Checkin       []Share `json:"checkin"`
	Checkout      []Share `json:"checkout"`
	State         []Share `json:"state"`
	StateWithPrev []Share `json:"state_with_previous_rental"`
}

func (a *Analysis) Shares(checkinType string) (Shares, error) {
	rows, err := a.filter(checkinType)
	if err != nil {
		return Shares{}, err
	}
	if checkinType == "" {
		checkinType = CheckinAll
	}
	s := Shares{
		CheckinType: checkinType,
		Total:       len(rows),
		Checkin:     countBy(a.rows, func(r Enriched) (string, bool) { return r.CheckinType, true }),
		Checkout:    countBy(rows, func(r Enriched) (string, bool) { return r.Checkout, true }),
		State:       countBy(rows, func(r Enriched) (string, bool) { return r.State, true }),
		StateWithPrev: countBy(rows, func(r Enriched) (string, bool) {
			return r.State, r.PreviousRentalID != nil
		}),
	}
	return s, nil
}

func countBy(rows []Enriched, key func(Enriched) (string, bool)) []Share {
	counts := make(map[string]int)
	total := 0
	for _, r := range rows {
		if k, ok := key(r); ok {
			counts[k]++
			total++
		}
	}
	shares := make([]Share, 0, len(counts))
	for label, n := range counts {
		shares = append(shares, Share{Label: label, Count: n, Ratio: float64(n) / float64(total)})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Label < shares[j].Label })
	return shares
}

// Bin is one histogram bucket covering [Lo, Hi)
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram counts values of the range [Min, Max]
type Histogram struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Bins []Bin   `json:"bins"`
}

func histogram(values []float64, lo, hi float64, bins int) Histogram {
	h := Histogram{Min: lo, Max: hi, Bins: make([]Bin, bins)}
	width := (hi - lo) / float64(bins)
	for i := range h.Bins {
		h.Bins[i].Lo = lo + float64(i)*width
		h.Bins[i].Hi = lo + float64(i+1)*width
	}
	for _, v := range values {
		if v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i == bins {
			i--
		}
		h.Bins[i].Count++
	}
	return h
}

// Delays is the checkout delay distribution of the filtered rentals
type Delays struct {
	CheckinType     string    `json:"checkin_type"`
	Delay           Histogram `json:"delay"`
	PlannedDelta    Histogram `json:"planned_time_delta"`
	LateCheckouts   int       `json:"late_checkouts"`
	MedianLateDelay float64   `json:"median_late_delay_minutes"`
}

// Delays computes the delay histogram over [0, 720] and the histogram of
// planned time deltas below 720 minutes.
func (a *Analysis) Delays(checkinType string, bins int) (Delays, error) {
	rows, err := a.filter(checkinType)
	if err != nil {
		return Delays{}, err
	}
	if bins <= 0 {
		bins = 48
	}
	if bins > MaxBins {
		return Delays{}, fmt.Errorf("%w: bins %d exceeds %d", ErrInvalidFilter, bins, MaxBins)
	}
	if checkinType == "" {
		checkinType = CheckinAll
	}
	var delays, deltas, late []float64
	for _, r := range rows {
		delays = append(delays, r.DelayMinutes)
		if r.TimeDeltaMinutes < MaxMinutes {
			deltas = append(deltas, r.TimeDeltaMinutes)
		}
		if r.DelayMinutes > 0 {
			late = append(late, r.DelayMinutes)
		}
	}
	d := Delays{
		CheckinType:   checkinType,
		Delay:         histogram(delays, 0, MaxMinutes, bins),
		PlannedDelta:  histogram(deltas, 0, MaxMinutes, bins),
		LateCheckouts: len(late),
	}
	if len(late) > 0 {
		sort.Float64s(late)
		mid := len(late) / 2
		if len(late)%2 == 0 {
			d.MedianLateDelay = (late[mid-1] + late[mid]) / 2
		} else {
			d.MedianLateDelay = late[mid]
		}
	}
	return d, nil
}

// Simulation is the effect of a minimum delay between two rentals
type Simulation struct {
	ThresholdMinutes int    `json:"threshold_minutes"`
	CheckinType      string `json:"checkin_type"`
	Studied          int    `json:"rentals_studied"`
	PotentialLoss    int    `json:"potential_loss"`
	ActualLoss       int    `json:"actual_loss"`
	ActualConnect    int    `json:"actual_loss_connect"`
	ActualMobile     int    `json:"actual_loss_mobile"`
}

// Simulate counts the rentals a threshold would forbid. Potential loss is
// every rental planned less than threshold minutes after the previous one;
// actual loss keeps only those that ended (were not canceled anyway).
func (a *Analysis) Simulate(threshold int, checkinType string) (Simulation, error) {
	if threshold < 0 || threshold > MaxMinutes {
		return Simulation{}, fmt.Errorf("%w: threshold %d not in [0, %d]", ErrInvalidFilter, threshold, MaxMinutes)
	}
	rows, err := a.filter(checkinType)
	if err != nil {
		return Simulation{}, err
	}
	if checkinType == "" {
		checkinType = CheckinAll
	}
	s := Simulation{ThresholdMinutes: threshold, CheckinType: checkinType, Studied: len(rows)}
	t := float64(threshold)
	for _, r := range rows {
		if r.TimeDeltaMinutes >= t {
			continue
		}
		s.PotentialLoss++
		if r.State != stateEnded {
			continue
		}
		s.ActualLoss++
		switch r.CheckinType {
		case CheckinConnect:
			s.ActualConnect++
		case CheckinMobile:
			s.ActualMobile++
		}
	}
	return s, nil
}
