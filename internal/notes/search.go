package notes

import (
	"strings"

	"github.com/starford/notesapp/internal/models"
)

// Search returns the notes whose title or content contains term, ignoring
// case, in collection order. An empty term returns the whole collection.
// The collection itself is never modified.
func (m *Manager) Search(term string) []models.Note {
	all := m.Notes()
	if term == "" {
		return all
	}
	return Filter(all, term)
}

// Filter is the pure matching step behind Search.
func Filter(notes []models.Note, term string) []models.Note {
	needle := strings.ToLower(term)
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), needle) ||
			strings.Contains(strings.ToLower(n.Content), needle) {
			out = append(out, n)
		}
	}
	return out
}
