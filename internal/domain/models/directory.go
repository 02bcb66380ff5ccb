package models

import "time"

// HealthcareProvider is a doctor or facility listed in the nearby-provider directory
type HealthcareProvider struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Specialization string    `json:"specialization" db:"specialization"`
	Phone          string    `json:"phone" db:"phone"`
	Address        string    `json:"address" db:"address"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	Latitude       float64   `json:"latitude" db:"latitude"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	Rating         *float64  `json:"rating,omitempty" db:"rating"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NearbyProvider is a directory hit annotated with its distance from the caller
type NearbyProvider struct {
	HealthcareProvider
	DistanceMeters float64 `json:"distance_meters"`
}
