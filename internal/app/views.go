package app

import (
	"time"

	"reviewdesk/internal/domain"
)

type BusinessInfo struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	State    string `json:"state"`
	Industry string `json:"industry"`
}

type ReviewView struct {
	ID             int64      `json:"id"`
	Source         string     `json:"source"`
	SourceReviewID string     `json:"sourceReviewId,omitempty"`
	Rating         int        `json:"rating"`
	Text           string     `json:"text"`
	AuthorName     string     `json:"authorName"`
	ReviewDate     time.Time  `json:"reviewDate"`
	SourceURL      string     `json:"sourceUrl,omitempty"`
	LastSynced     *time.Time `json:"lastSynced,omitempty"`
}

type ReviewsPage struct {
	Reviews []ReviewView `json:"reviews"`
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
	Total   int          `json:"total"`
}

type ReviewSample struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
	Author string `json:"author"`
	Date   string `json:"date"`
}

type Preview struct {
	TotalReviews int           `json:"totalReviews"`
	Rating       float64       `json:"rating"`
	ReviewSample *ReviewSample `json:"reviewSample,omitempty"`
}

// ExternalReviewView is a live provider review shaped like a stored one.
type ExternalReviewView struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Rating     int       `json:"rating"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName"`
	ReviewDate time.Time `json:"reviewDate"`
	SourceURL  string    `json:"sourceUrl"`
}

func toReviewView(r domain.Review) ReviewView {
	return ReviewView{
		ID:             r.ID,
		Source:         r.Source,
		SourceReviewID: deref(r.SourceReviewID),
		Rating:         r.Rating,
		Text:           r.Text,
		AuthorName:     r.AuthorName,
		ReviewDate:     r.ReviewDate,
		SourceURL:      r.SourceURL,
		LastSynced:     r.LastSynced,
	}
}

// BusinessView is the JSON shape of a business profile.
type BusinessView struct {
	ID string `json:"id"`
	domain.ProfileInput
	YelpID             *string    `json:"yelpId"`
	YelpURL            string     `json:"yelpUrl,omitempty"`
	YelpRating         *float64   `json:"yelpRating"`
	YelpReviewCount    *int       `json:"yelpReviewCount"`
	LastYelpSync       *time.Time `json:"lastYelpSync"`
	GooglePlaceID      string     `json:"googlePlaceId,omitempty"`
	GoogleBusinessName string     `json:"googleBusinessName,omitempty"`
	GoogleBusinessURL  string     `json:"googleBusinessUrl,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func ViewOf(b domain.Business) BusinessView {
	return BusinessView{
		ID:                 b.ID,
		ProfileInput:       profileOf(b),
		YelpID:             b.YelpID,
		YelpURL:            b.YelpURL,
		YelpRating:         b.YelpRating,
		YelpReviewCount:    b.YelpReviewCount,
		LastYelpSync:       b.LastYelpSync,
		GooglePlaceID:      b.GooglePlaceID,
		GoogleBusinessName: b.GoogleBusinessName,
		GoogleBusinessURL:  b.GoogleBusinessURL,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
