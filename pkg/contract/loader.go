package contract

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"
)

// SupportedSpecVersions is the range of specVersion values the loader reads.
const SupportedSpecVersions = ">= 2.0.0, < 4.0.0"

var (
	defaultLoaderOnce sync.Once
	defaultLoader     *Loader
	defaultLoaderErr  error
)

// Loader reads contract artifacts back into documents, keeping matcher
// metadata so that verification applies matcher semantics.
type Loader struct {
	schema   *jsonschema.Schema
	versions *semver.Constraints
}

func NewLoader() (*Loader, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("contract.schema.json", strings.NewReader(documentSchema)); err != nil {
		return nil, errors.Wrap(err, "failed to add contract schema resource")
	}
	schema, err := compiler.Compile("contract.schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile contract schema")
	}

	versions, err := semver.NewConstraint(SupportedSpecVersions)
	if err != nil {
		return nil, errors.Wrap(err, "invalid spec version constraint")
	}

	return &Loader{schema: schema, versions: versions}, nil
}

// DefaultLoader returns a process wide loader. The embedded schema is fixed,
// so a failure here is a programming error.
func DefaultLoader() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader, defaultLoaderErr = NewLoader()
	})
	if defaultLoaderErr != nil {
		panic(defaultLoaderErr)
	}
	return defaultLoader
}

// Load reads the contract at path.
func Load(path string) (*Document, error) {
	return DefaultLoader().Load(path)
}

func (l *Loader) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read contract %s", path)
	}
	doc, err := l.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load contract %s", path)
	}
	log.WithField("path", path).Debugf("loaded %d interaction(s)", len(doc.Interactions))
	return doc, nil
}

// LoadAll reads several contracts, keeping the given order.
func (l *Loader) LoadAll(paths ...string) ([]*Document, error) {
	docs := make([]*Document, 0, len(paths))
	for _, path := range paths {
		doc, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) Parse(data []byte) (*Document, error) {
	var raw interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "contract is not valid JSON")
	}
	if err := l.schema.Validate(raw); err != nil {
		return nil, errors.Wrap(err, "contract does not match the contract schema")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "unable to parse contract")
	}

	version, err := semver.NewVersion(doc.SpecVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid specVersion %q", doc.SpecVersion)
	}
	if !l.versions.Check(version) {
		return nil, errors.Errorf("unsupported specVersion %s, expected %s", version, SupportedSpecVersions)
	}

	if doc.Interactions == nil {
		doc.Interactions = []Interaction{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["consumer", "provider", "specVersion", "interactions"],
  "properties": {
    "consumer": {"$ref": "#/$defs/pacticipant"},
    "provider": {"$ref": "#/$defs/pacticipant"},
    "specVersion": {"type": "string", "minLength": 1},
    "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
    "interactions": {"type": "array", "items": {"$ref": "#/$defs/interaction"}}
  },
  "$defs": {
    "pacticipant": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "interaction": {
      "type": "object",
      "required": ["description", "request", "response"],
      "properties": {
        "description": {"type": "string", "minLength": 1},
        "providerState": {"type": "string"},
        "request": {
          "type": "object",
          "required": ["method", "path"],
          "properties": {
            "method": {"type": "string", "minLength": 1},
            "query": {"type": "object"},
            "headers": {"type": "object"}
          }
        },
        "response": {
          "type": "object",
          "required": ["status"],
          "properties": {
            "status": {"type": "integer", "minimum": 100, "maximum": 599},
            "headers": {"type": "object"}
          }
        }
      }
    }
  }
}`
