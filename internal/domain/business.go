package domain

import "time"

type Business struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Industry    string
	Address     string
	City        string
	State       string
	ZipCode     string
	Country     string
	Phone       string
	Website     string

	// Yelp linkage; YelpID is unique across businesses when set.
	YelpID          *string
	YelpURL         string
	YelpRating      *float64
	YelpReviewCount *int
	LastYelpSync    *time.Time

	GooglePlaceID      string
	GoogleBusinessName string
	GoogleBusinessURL  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b Business) YelpConnected() bool { return b.YelpID != nil && *b.YelpID != "" }

// ProfileInput holds the owner-editable identity fields of a business.
type ProfileInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`
}

// YelpLink is the set of linkage columns written when a Yelp listing is attached.
type YelpLink struct {
	YelpID       string
	URL          string
	Rating       float64
	ReviewCount  int
	LastYelpSync *time.Time
}

// GoogleLink is the set of linkage columns written for a Google Business Profile / Place.
type GoogleLink struct {
	PlaceID      string
	BusinessName string
	BusinessURL  string
}

// ExternalBusiness is a business record as reported by a review provider.
type ExternalBusiness struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	URL          string   `json:"url"`
	Phone        string   `json:"phone"`
	DisplayPhone string   `json:"display_phone"`
	Address1     string   `json:"address1"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Country      string   `json:"country"`
	Photos       []string `json:"photos,omitempty"`
}

// ExternalReview is one review as reported by a review provider.
type ExternalReview struct {
	ID          string
	Rating      int
	Text        string
	AuthorName  string
	TimeCreated string // provider format "2006-01-02 15:04:05"
	URL         string
}

// GooglePlace holds the Places details used to fill a business profile.
type GooglePlace struct {
	PlaceID string
	Name    string
	Address string
	Phone   string
	Website string
	URL     string
}
