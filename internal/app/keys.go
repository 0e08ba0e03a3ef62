package app

import "fmt"

func statsKey(businessID string) string    { return fmt.Sprintf("yelp:stats:%s", businessID) }
func analysisKey(businessID string) string { return fmt.Sprintf("reviews:analysis:%s", businessID) }
func detailsKey(yelpID string) string      { return fmt.Sprintf("yelp:details:%s", yelpID) }
