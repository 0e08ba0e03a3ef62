package domain

import "time"

const (
	SourceGoogle = "google"
	SourceYelp   = "yelp"
	SourceDirect = "direct"
)

type Review struct {
	ID             int64
	BusinessID     string
	Source         string
	SourceReviewID *string // nil only for legacy rows
	Rating         int
	Text           string
	AuthorName     string
	ReviewDate     time.Time
	SourceURL      string
	LastSynced     *time.Time
	CreatedAt      time.Time
}

type PageQuery struct {
	Limit  int
	Offset int
}

// ReviewSample is the slice of a review handed to the analyzer.
type ReviewSample struct {
	Text   string    `json:"text"`
	Rating int       `json:"rating"`
	Date   time.Time `json:"date"`
}

type ReviewAnalysis struct {
	Summary struct {
		Text      string `json:"text"`
		Sentiment string `json:"sentiment"`
	} `json:"summary"`
	Rating struct {
		Current  float64 `json:"current"`
		Previous float64 `json:"previous"`
		Trend    string  `json:"trend"`
	} `json:"rating"`
	Topics []struct {
		Name      string   `json:"name"`
		Sentiment string   `json:"sentiment"`
		Frequency float64  `json:"frequency"`
		Examples  []string `json:"examples"`
	} `json:"topics"`
	Improvements []struct {
		Area        string `json:"area"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	} `json:"improvements"`
}
