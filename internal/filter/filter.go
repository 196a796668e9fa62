// Package filter narrows the client roster for dashboard views.
package filter

import (
	"strings"

	"transit-pass-api/internal/models"
)

// Clients returns the clients matching every criterion set in f, in their original order.
// The input slice is never modified.
//
// Status must match exactly. City is a case-insensitive substring match. FreeText matches
// surname, given name and email case-insensitively, and the phone number verbatim.
func Clients(clients []models.Client, f models.ClientFilter) []models.Client {
	city := strings.ToLower(strings.TrimSpace(f.City))
	text := strings.TrimSpace(f.FreeText)
	foldedText := strings.ToLower(text)

	out := make([]models.Client, 0, len(clients))
	for _, c := range clients {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(c.City), city) {
			continue
		}
		if text != "" && !matchesText(c, text, foldedText) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesText(c models.Client, raw, folded string) bool {
	return strings.Contains(strings.ToLower(c.Surname), folded) ||
		strings.Contains(strings.ToLower(c.GivenName), folded) ||
		strings.Contains(strings.ToLower(c.Email), folded) ||
		strings.Contains(c.Phone, raw)
}
