package contract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var writeMu sync.Mutex

type Writer struct {
	dir    string
	loader *Loader
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, loader: DefaultLoader()}
}

// Write merges doc into the artifact already on disk for the same consumer
// and provider and atomically replaces it. It returns the artifact path.
func (w *Writer) Write(doc *Document) (string, error) {
	target := filepath.Join(w.dir, FileName(doc.Consumer.Name, doc.Provider.Name))

	if err := doc.Validate(); err != nil {
		return target, &WriteError{Path: target, Err: err}
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	merged, err := w.mergeWithExisting(target, doc)
	if err != nil {
		return target, &WriteError{Path: target, Err: err}
	}

	data, err := Canonical(merged)
	if err != nil {
		return target, &WriteError{Path: target, Err: err}
	}

	if err := writeAtomic(target, data); err != nil {
		return target, &WriteError{Path: target, Err: err}
	}

	log.WithFields(log.Fields{
		"path":         target,
		"interactions": len(merged.Interactions),
	}).Infof("wrote contract between '%s' and '%s'", merged.Consumer.Name, merged.Provider.Name)
	return target, nil
}

func (w *Writer) mergeWithExisting(target string, doc *Document) (*Document, error) {
	merged := NewDocument(doc.Consumer.Name, doc.Provider.Name)
	if doc.SpecVersion != "" {
		merged.SpecVersion = doc.SpecVersion
	}
	for k, v := range doc.Metadata {
		merged.Metadata[k] = v
	}

	existing, err := w.loader.Load(target)
	switch {
	case err == nil:
		merged.Interactions = append(merged.Interactions, existing.Interactions...)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrap(err, "unable to read existing contract")
	}

	merged.Merge(doc.Interactions...)
	return merged, nil
}

// Canonical renders a document as RFC 8785 canonical JSON. Interaction order
// is kept since arrays are not reordered.
func Canonical(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal contract")
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to canonicalise contract")
	}
	return canonical, nil
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "unable to create contract directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary contract file")
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write temporary contract file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to sync temporary contract file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close temporary contract file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "unable to set contract file mode")
	}
	if err := os.Rename(tmpName, target); err != nil {
		return errors.Wrap(err, "unable to replace contract file")
	}
	tmpName = ""
	return nil
}
