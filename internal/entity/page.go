package entity

import "time"

// PageRecord is the structural snapshot of one crawled page.
type PageRecord struct {
	URL     string       `json:"url"`
	Depth   int          `json:"depth"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Forms   []FormData   `json:"forms"`
	Buttons []ButtonData `json:"buttons"`
	Links   []LinkData   `json:"links"`
	Inputs  []InputData  `json:"inputs"`
}

type FormData struct {
	Selector string      `json:"selector"`
	Action   string      `json:"action"`
	Method   string      `json:"method"`
	Inputs   []InputData `json:"inputs"`
}

type ButtonData struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Type     string `json:"type"`
}

type LinkData struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Href     string `json:"href"`
}

type InputData struct {
	Selector    string `json:"selector"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Required    bool   `json:"required"`
}

// WebsitePage is a persisted PageRecord.
type WebsitePage struct {
	ID        string    `json:"id"`
	WebsiteID string    `json:"website_id"`
	CreatedAt time.Time `json:"created_at"`
	PageRecord
}

// HasForms reports whether any form was found on the page.
func (p *PageRecord) HasForms() bool { return len(p.Forms) > 0 }
