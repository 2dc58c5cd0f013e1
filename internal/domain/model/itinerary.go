package model

import (
	"errors"
	"time"
)

// TripSurvey is the input aggregate for generation jobs. Its CRUD lives in
// the main travel API; this service only reads it to validate ownership and
// assemble the planner payload.
type TripSurvey struct {
	ID          string    `json:"id"           db:"id"`
	OwnerID     string    `json:"owner_id"     db:"owner_id"`
	Destination string    `json:"destination"  db:"destination"`
	StartDate   time.Time `json:"start_date"   db:"start_date"`
	EndDate     time.Time `json:"end_date"     db:"end_date"`
	PartySize   int       `json:"party_size"   db:"party_size"`
	Pace        string    `json:"pace"         db:"pace"`
	Interests   []string  `json:"interests"    db:"interests"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// PreferenceSet is the input aggregate for recommendation jobs.
type PreferenceSet struct {
	ID         string    `json:"id"         db:"id"`
	OwnerID    string    `json:"owner_id"   db:"owner_id"`
	Themes     []string  `json:"themes"     db:"themes"`
	Budget     string    `json:"budget"     db:"budget"`
	Season     string    `json:"season"     db:"season"`
	Companions string    `json:"companions" db:"companions"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Itinerary is the owning result aggregate: an ordered sequence of days,
// each with ordered place visits, plus a flat tag set.
type Itinerary struct {
	ID        string    `json:"id"         db:"id"`
	OwnerID   string    `json:"owner_id"   db:"owner_id"`
	SurveyRef string    `json:"survey_ref" db:"survey_ref"`
	Title     string    `json:"title"      db:"title"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date"   db:"end_date"`
	DayCount  int       `json:"day_count"  db:"day_count"`
	Tags      []string  `json:"tags"`
	Days      []ItineraryDay
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ItineraryDay is one ordered day of an itinerary.
type ItineraryDay struct {
	ID       string    `json:"id"        db:"id"`
	DayIndex int       `json:"day_index" db:"day_index"`
	Date     time.Time `json:"date"      db:"date"`
	Summary  string    `json:"summary"   db:"summary"`
	Visits   []ItineraryVisit
}

// ItineraryVisit is one ordered place visit within a day.
type ItineraryVisit struct {
	ID         string  `json:"id"          db:"id"`
	VisitIndex int     `json:"visit_index" db:"visit_index"`
	PlaceName  string  `json:"place_name"  db:"place_name"`
	Category   string  `json:"category"    db:"category"`
	Latitude   float64 `json:"latitude"    db:"latitude"`
	Longitude  float64 `json:"longitude"   db:"longitude"`
	Note       string  `json:"note"        db:"note"`
}

// ItineraryResult is the complete replacement graph the planner returns on a
// successful generation or modification. The previous graph is deleted and
// this one inserted atomically; nothing is ever patched in place.
type ItineraryResult struct {
	Title     string      `json:"title"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Tags      []string    `json:"tags"`
	Days      []DayResult `json:"days"`
}

// DayResult is one day of an ItineraryResult.
type DayResult struct {
	Date    time.Time     `json:"date"`
	Summary string        `json:"summary"`
	Visits  []VisitResult `json:"visits"`
}

// VisitResult is one place visit of a DayResult.
type VisitResult struct {
	PlaceName string  `json:"place_name"`
	Category  string  `json:"category"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Note      string  `json:"note"`
}

// Validate validates the ItineraryResult payload.
func (r *ItineraryResult) Validate() error {
	if r.Title == "" {
		return errors.New("itinerary title is required")
	}
	if len(r.Days) == 0 {
		return errors.New("itinerary requires at least one day")
	}
	for i := range r.Days {
		if len(r.Days[i].Visits) == 0 {
			return errors.New("each itinerary day requires at least one visit")
		}
		for j := range r.Days[i].Visits {
			if r.Days[i].Visits[j].PlaceName == "" {
				return errors.New("each visit requires a place name")
			}
		}
	}
	return nil
}

// RecommendationSet is the result aggregate of a recommendation job.
type RecommendationSet struct {
	ID            string    `json:"id"             db:"id"`
	OwnerID       string    `json:"owner_id"       db:"owner_id"`
	PreferenceRef string    `json:"preference_ref" db:"preference_ref"`
	Places        []RecommendedPlace
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

// RecommendedPlace is one ordered, scored destination.
type RecommendedPlace struct {
	ID        string  `json:"id"         db:"id"`
	Rank      int     `json:"rank"       db:"rank"`
	PlaceName string  `json:"place_name" db:"place_name"`
	Country   string  `json:"country"    db:"country"`
	Score     float64 `json:"score"      db:"score"`
	Reason    string  `json:"reason"     db:"reason"`
}

// RecommendationResult is the complete replacement list the planner returns
// on a successful recommendation.
type RecommendationResult struct {
	Places []PlaceResult `json:"places"`
}

// PlaceResult is one destination of a RecommendationResult.
type PlaceResult struct {
	PlaceName string  `json:"place_name"`
	Country   string  `json:"country"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// Validate validates the RecommendationResult payload.
func (r *RecommendationResult) Validate() error {
	if len(r.Places) == 0 {
		return errors.New("recommendation requires at least one place")
	}
	for i := range r.Places {
		if r.Places[i].PlaceName == "" {
			return errors.New("each recommendation requires a place name")
		}
	}
	return nil
}
