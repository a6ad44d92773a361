package mockserver

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

// Modifier overrides part of the response served for an interaction without
// touching the recorded contract, e.g. to make the consumer observe a 500 on
// its second attempt. Path is "$.status" or "$.body.<field path>".
type Modifier struct {
	Interaction     string      `json:"interaction"`
	Path            string      `json:"path"`
	Value           interface{} `json:"value"`
	Attempt         *int        `json:"attempt"`
	countStatusCode int
	countBody       int
}

func (m *Modifier) validate() error {
	if m.Interaction == "" {
		return errors.New("modifier needs an interaction")
	}
	if m.Path != "$.status" && !strings.HasPrefix(m.Path, "$.body.") {
		return fmt.Errorf("invalid modifier path: %s", m.Path)
	}
	return nil
}

func (m *Modifier) Key() string {
	return strings.Join([]string{m.Interaction, m.Path}, "_")
}

func (m *Modifier) modifyBody(b []byte) ([]byte, error) {
	if !strings.HasPrefix(m.Path, "$.body.") {
		return b, nil
	}
	m.countBody++
	if m.Attempt == nil || *m.Attempt == m.countBody {
		if len(b) == 0 {
			b = []byte("{}")
		}
		return sjson.SetBytes(b, strings.TrimPrefix(m.Path, "$.body."), m.Value)
	}
	return b, nil
}

func (m *Modifier) modifyStatusCode() (bool, int) {
	if m.Path != "$.status" {
		return false, 0
	}
	m.countStatusCode++
	if m.Attempt == nil || *m.Attempt == m.countStatusCode {
		code, err := strconv.Atoi(fmt.Sprintf("%v", m.Value))
		if err == nil {
			return true, code
		}
	}
	return false, 0
}

type interactionModifiers struct {
	mu        sync.Mutex
	modifiers map[string]*Modifier
}

func (im *interactionModifiers) AddModifier(modifier *Modifier) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.modifiers == nil {
		im.modifiers = map[string]*Modifier{}
	}
	im.modifiers[modifier.Key()] = modifier
}

// apply runs every modifier once for a served response.
func (im *interactionModifiers) apply(status int, body []byte) (int, []byte, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	for _, modifier := range im.modifiers {
		if ok, code := modifier.modifyStatusCode(); ok {
			status = code
		}
		var err error
		body, err = modifier.modifyBody(body)
		if err != nil {
			return status, body, errors.Wrapf(err, "unable to apply modifier %s", modifier.Path)
		}
	}
	return status, body, nil
}
