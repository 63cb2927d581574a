package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Ad is a scraped classified listing.
type Ad struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Category  *string   `json:"category,omitempty"`
	City      *string   `json:"city,omitempty"`
	Price     *int64    `json:"price,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	URL       *string   `json:"url,omitempty"`
	OwnerName *string   `json:"owner_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AdCandidate is an ad matched by a campaign and not yet contacted by its tenant.
type AdCandidate struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	RecipientPhone string    `json:"recipient_phone"`
	OwnerName      string    `json:"owner_name,omitempty"`
	City           string    `json:"city,omitempty"`
	URL            string    `json:"url,omitempty"`
	Price          *int64    `json:"price,omitempty"`
}

func (a *Ad) Candidate() AdCandidate {
	c := AdCandidate{ID: a.ID, Title: a.Title, Price: a.Price}
	if a.Phone != nil {
		c.RecipientPhone = *a.Phone
	}
	if a.OwnerName != nil {
		c.OwnerName = *a.OwnerName
	}
	if a.City != nil {
		c.City = *a.City
	}
	if a.URL != nil {
		c.URL = *a.URL
	}
	return c
}

// TemplateVars exposes the candidate to message templates.
func (c AdCandidate) TemplateVars() map[string]string {
	vars := map[string]string{
		"title": c.Title,
		"name":  c.OwnerName,
		"city":  c.City,
		"url":   c.URL,
	}
	if c.Price != nil {
		vars["price"] = strconv.FormatInt(*c.Price, 10)
	}
	return vars
}
