package api

import (
	"fmt"
	"regexp"
	"strings"
)

var zipPattern = regexp.MustCompile(`^\d{5}(?:-?\d{4})?$`)

func (r CreateSaleRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.StartsAt == nil || r.StartsAt.IsZero() {
		return fmt.Errorf("startsAt is required")
	}
	if r.EndsAt == nil || r.EndsAt.IsZero() {
		return fmt.Errorf("endsAt is required")
	}
	if !r.EndsAt.After(*r.StartsAt) {
		return fmt.Errorf("endsAt must be after startsAt")
	}
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if zip := compactZip(r.Zip); zip != "" && !zipPattern.MatchString(zip) {
		return fmt.Errorf("zip must be a valid ZIP code")
	}
	if r.Location != nil && !r.Location.Valid() {
		return fmt.Errorf("location must be a valid lat/lng pair")
	}
	return nil
}

// FullAddress joins the street line with state and ZIP, e.g. "500 Test Ave, OR 97201".
func (r CreateSaleRequest) FullAddress() string {
	street := strings.TrimSpace(r.Address)
	street = strings.TrimSpace(strings.TrimSuffix(street, ","))

	locality := strings.TrimSpace(strings.ToUpper(strings.TrimSpace(r.State)) + " " + compactZip(r.Zip))
	switch {
	case locality == "":
		return street
	case street == "":
		return locality
	default:
		return street + ", " + locality
	}
}

func compactZip(z string) string {
	return strings.Join(strings.Fields(z), "")
}

func (r GeocodeRequest) Validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}
