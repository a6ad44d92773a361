package mockserver

import (
	"sync"
)

// Interactions is the registry of a mock server, kept in registration order.
type Interactions struct {
	mu           sync.RWMutex
	interactions []*Interaction
}

// Store registers interaction, replacing an earlier one with the same
// identity in place.
func (i *Interactions) Store(interaction *Interaction) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, existing := range i.interactions {
		if existing.Identity() == interaction.Identity() {
			i.interactions[idx] = interaction
			return
		}
	}
	i.interactions = append(i.interactions, interaction)
}

// Load finds an interaction by description. With duplicated descriptions
// the first registered one wins.
func (i *Interactions) Load(description string) (*Interaction, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, interaction := range i.interactions {
		if interaction.Description == description {
			return interaction, true
		}
	}
	return nil, false
}

// FindAll returns the candidates for a method and path in registration order.
func (i *Interactions) FindAll(path, method string) ([]*Interaction, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var result []*Interaction
	for _, interaction := range i.interactions {
		if interaction.Match(path, method) {
			result = append(result, interaction)
		}
	}
	return result, len(result) > 0
}

func (i *Interactions) All() []*Interaction {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]*Interaction(nil), i.interactions...)
}

func (i *Interactions) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.interactions)
}

func (i *Interactions) AllHaveRequests() bool {
	for _, interaction := range i.All() {
		if !interaction.HasRequests(1) {
			return false
		}
	}
	return true
}
