package models

import "time"

type DeviceClass string

const (
	DeviceDesktop DeviceClass = "Desktop"
	DeviceMobile  DeviceClass = "Mobile"
	DeviceTablet  DeviceClass = "Tablet"
)

const (
	ReferrerDirect  = "Direct"
	LocationUnknown = "Unknown"
)

type LinkRecord struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	OriginalURL string    `json:"original_url"`
	Alias       string    `json:"alias"`
	ShortURL    string    `json:"short_url"`
	ClickCount  int64     `json:"click_count"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	UTM         UTM       `json:"utm"`
	QRDesignRef string    `json:"qr_design_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l *LinkRecord) HasQRCode() bool {
	return l.QRDesignRef != ""
}

type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

func (u UTM) IsZero() bool {
	return u == UTM{}
}

type AnalyticsEvent struct {
	ID              string      `json:"id"`
	LinkID          string      `json:"link_id"`
	OwnerID         string      `json:"owner_id"`
	OccurredAt      time.Time   `json:"occurred_at"`
	DeviceClass     DeviceClass `json:"device_class"`
	ReferrerDomain  string      `json:"referrer_domain"`
	LocationCountry string      `json:"location_country"`
	LocationCity    string      `json:"location_city"`
	IsQRScan        bool        `json:"is_qr_scan"`
}

type UsageCounter struct {
	OwnerID              string    `json:"owner_id"`
	LinksUsed            int64     `json:"links_used"`
	QRCodesUsed          int64     `json:"qr_codes_used"`
	CustomBackhalvesUsed int64     `json:"custom_backhalves_used"`
	PeriodStart          time.Time `json:"period_start"`
}

// UsageDelta is applied to a UsageCounter in a single store operation.
type UsageDelta struct {
	Links            int64
	QRCodes          int64
	CustomBackhalves int64
}

// UsageCaps bounds a UsageDelta; zero or negative means unbounded.
type UsageCaps struct {
	Links            int64
	CustomBackhalves int64
}

// Visit is what the request surface knows about a single visitor.
type Visit struct {
	UserAgent string
	Referer   string
	IP        string
	IsQRScan  bool
	At        time.Time
}

type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}
