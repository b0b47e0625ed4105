package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/artromone/linkpulse/services/shortener/models"
)

const dateLayout = "2006-01-02"

type DatePoint struct {
	Date   string `json:"date"`
	Clicks int    `json:"clicks"`
	Scans  int    `json:"scans"`
	Total  int    `json:"total"`
}

type DevicePoint struct {
	Device     string `json:"device"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type ReferrerPoint struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
}

type LocationPoint struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

type TopDate struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Summary struct {
	LinkID      string          `json:"link_id"`
	Range       string          `json:"range"`
	TotalClicks int             `json:"total_clicks"`
	TotalScans  int             `json:"total_scans"`
	ByDate      []DatePoint     `json:"by_date"`
	ByDevice    []DevicePoint   `json:"by_device"`
	ByReferrer  []ReferrerPoint `json:"by_referrer"`
	ByLocation  []LocationPoint `json:"by_location"`
	TopDate     *TopDate        `json:"top_date"`
	TopLocation *LocationPoint  `json:"top_location"`
}

// RangeStart maps a range of "7", "30", "90" days or "all" to the earliest
// event time to include. "all" yields the zero time.
func RangeStart(r string, now time.Time) (time.Time, error) {
	switch r {
	case "", "all":
		return time.Time{}, nil
	case "7":
		return now.AddDate(0, 0, -7), nil
	case "30":
		return now.AddDate(0, 0, -30), nil
	case "90":
		return now.AddDate(0, 0, -90), nil
	default:
		return time.Time{}, fmt.Errorf("%w: range must be 7, 30, 90 or all", models.ErrInvalidInput)
	}
}

// Summarize aggregates events into the dashboard breakdowns. Groups with equal
// counts keep the order in which they were first seen.
func Summarize(events []models.AnalyticsEvent) Summary {
	var s Summary

	dates := newTally()
	scans := map[string]int{}
	devices := newTally()
	referrers := newTally()
	locations := newTally()

	for _, e := range events {
		date := e.OccurredAt.UTC().Format(dateLayout)
		dates.add(date)
		if e.IsQRScan {
			s.TotalScans++
			scans[date]++
		} else {
			s.TotalClicks++
		}

		device := string(e.DeviceClass)
		if device == "" {
			device = models.LocationUnknown
		}
		devices.add(device)

		referrer := e.ReferrerDomain
		if referrer == "" {
			referrer = models.ReferrerDirect
		}
		referrers.add(referrer)

		locations.add(locationOf(e))
	}

	for _, date := range dates.keys {
		total := dates.counts[date]
		s.ByDate = append(s.ByDate, DatePoint{
			Date:   date,
			Clicks: total - scans[date],
			Scans:  scans[date],
			Total:  total,
		})
	}
	sort.SliceStable(s.ByDate, func(i, j int) bool { return s.ByDate[i].Date < s.ByDate[j].Date })

	for _, device := range devices.sorted() {
		count := devices.counts[device]
		s.ByDevice = append(s.ByDevice, DevicePoint{
			Device:     device,
			Count:      count,
			Percentage: int(math.Round(float64(count) / float64(len(events)) * 100)),
		})
	}

	for _, referrer := range referrers.sorted() {
		s.ByReferrer = append(s.ByReferrer, ReferrerPoint{Referrer: referrer, Count: referrers.counts[referrer]})
	}

	for _, location := range locations.sorted() {
		s.ByLocation = append(s.ByLocation, LocationPoint{Location: location, Count: locations.counts[location]})
	}

	s.TopDate = topDate(s.ByDate)
	s.TopLocation = topLocation(s.ByLocation)
	return s
}

func locationOf(e models.AnalyticsEvent) string {
	if known(e.LocationCountry) {
		return e.LocationCountry
	}
	if known(e.LocationCity) {
		return e.LocationCity
	}
	return models.LocationUnknown
}

func known(v string) bool {
	return v != "" && v != models.LocationUnknown && v != "null"
}

func topDate(points []DatePoint) *TopDate {
	if len(points) == 0 {
		return nil
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.Total > best.Total {
			best = p
		}
	}
	return &TopDate{Date: best.Date, Count: best.Total}
}

// topLocation prefers the busiest known location over Unknown.
func topLocation(points []LocationPoint) *LocationPoint {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.Location != models.LocationUnknown {
			top := p
			return &top
		}
	}
	top := points[0]
	return &top
}

type tally struct {
	keys   []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: map[string]int{}}
}

func (t *tally) add(key string) {
	if _, ok := t.counts[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.counts[key]++
}

func (t *tally) sorted() []string {
	keys := append([]string(nil), t.keys...)
	sort.SliceStable(keys, func(i, j int) bool { return t.counts[keys[i]] > t.counts[keys[j]] })
	return keys
}

type LinkFinder interface {
	FindByID(ctx context.Context, id string) (*models.LinkRecord, error)
}

type EventLister interface {
	EventsForLink(ctx context.Context, linkID string, since time.Time) ([]models.AnalyticsEvent, error)
}

// Reporter builds summaries for a link's owner.
type Reporter struct {
	links  LinkFinder
	events EventLister
	now    func() time.Time
}

func NewReporter(links LinkFinder, events EventLister) *Reporter {
	return &Reporter{links: links, events: events, now: time.Now}
}

// Summary reports on linkID for ownerID. A link owned by someone else is
// reported as not found.
func (r *Reporter) Summary(ctx context.Context, ownerID, linkID, rangeParam string) (*Summary, error) {
	since, err := RangeStart(rangeParam, r.now())
	if err != nil {
		return nil, err
	}

	link, err := r.links.FindByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}

	events, err := r.events.EventsForLink(ctx, linkID, since)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	summary := Summarize(events)
	summary.LinkID = linkID
	summary.Range = rangeParam
	if summary.Range == "" {
		summary.Range = "all"
	}
	return &summary, nil
}
