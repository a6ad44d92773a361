// Package contract holds the portable contract model shared by consumer and
// provider runs, together with the artifact writer and loader.
package contract

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultSpecVersion = "3.0.0"
	generator          = "pact-contract"
)

type Pacticipant struct {
	Name string `json:"name"`
}

// Document is the canonical contract between one consumer and one provider.
// Interactions keep registration order.
type Document struct {
	Consumer     Pacticipant       `json:"consumer"`
	Provider     Pacticipant       `json:"provider"`
	SpecVersion  string            `json:"specVersion"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Interactions []Interaction     `json:"interactions"`
}

func NewDocument(consumer, provider string) *Document {
	return &Document{
		Consumer:     Pacticipant{Name: consumer},
		Provider:     Pacticipant{Name: provider},
		SpecVersion:  DefaultSpecVersion,
		Metadata:     map[string]string{"generator": generator},
		Interactions: []Interaction{},
	}
}

// Merge replaces interactions sharing an identity in place and appends the
// rest, leaving unrelated entries untouched.
func (d *Document) Merge(interactions ...Interaction) {
	index := make(map[Identity]int, len(d.Interactions))
	for i, existing := range d.Interactions {
		index[existing.Identity()] = i
	}
	for _, interaction := range interactions {
		id := interaction.Identity()
		if i, ok := index[id]; ok {
			d.Interactions[i] = interaction
			continue
		}
		index[id] = len(d.Interactions)
		d.Interactions = append(d.Interactions, interaction)
	}
}

func (d *Document) Find(id Identity) (Interaction, bool) {
	for _, interaction := range d.Interactions {
		if interaction.Identity() == id {
			return interaction, true
		}
	}
	return Interaction{}, false
}

func (d *Document) Validate() error {
	if strings.TrimSpace(d.Consumer.Name) == "" {
		return errors.New("contract has no consumer name")
	}
	if strings.TrimSpace(d.Provider.Name) == "" {
		return errors.New("contract has no provider name")
	}
	seen := make(map[Identity]bool, len(d.Interactions))
	for _, interaction := range d.Interactions {
		if err := interaction.Validate(); err != nil {
			return err
		}
		id := interaction.Identity()
		if seen[id] {
			return fmt.Errorf("contract has duplicate interaction %s", id)
		}
		seen[id] = true
	}
	return nil
}

// FileName is the artifact name for a consumer/provider pair.
func FileName(consumer, provider string) string {
	clean := func(s string) string {
		return strings.Join(strings.Fields(s), "_")
	}
	return clean(consumer) + "-" + clean(provider) + ".json"
}
