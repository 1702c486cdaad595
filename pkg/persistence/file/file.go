// Package file provides file-based persistence for journeys and their executions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/persistence"
)

// Persistence implements persistence.Persistence with one JSON file per record.
type Persistence struct {
	root string

	journeys   *collection[models.Journey]
	versions   *collection[models.Journey]
	executions *collection[models.JourneyExecution]
	deliveries *collection[models.DeliveryEvent]
	approvals  *collection[models.ApprovalRequest]
	schedules  *collection[models.Schedule]
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:       cleanRoot,
		journeys:   newCollection[models.Journey](cleanRoot, "journeys"),
		versions:   newCollection[models.Journey](cleanRoot, "journey_versions"),
		executions: newCollection[models.JourneyExecution](cleanRoot, "executions"),
		deliveries: newCollection[models.DeliveryEvent](cleanRoot, "delivery_events"),
		approvals:  newCollection[models.ApprovalRequest](cleanRoot, "approvals"),
		schedules:  newCollection[models.Schedule](cleanRoot, "schedules"),
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// collection stores records of one kind under root/dir/<id>.json.
type collection[T any] struct {
	mu  sync.RWMutex
	dir string
}

func newCollection[T any](root, dir string) *collection[T] {
	return &collection[T]{dir: filepath.Join(root, dir)}
}

// validateID rejects identifiers that could escape the collection directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (c *collection[T]) save(id string, record *T) error {
	return c.saveIf(id, record, nil)
}

// saveIf writes record unless check rejects the currently stored version.
// check receives nil when nothing is stored yet; the read and the write share the lock.
func (c *collection[T]) saveIf(id string, record *T, check func(stored *T) error) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if check != nil {
		stored, err := c.read(filepath.Join(c.dir, id+".json"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		err = check(stored)
		if err != nil {
			return err
		}
	}

	err = os.MkdirAll(c.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.dir, err)
	}

	// Write then rename so readers never observe a partial file.
	tmp, err := os.CreateTemp(c.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	_, err = tmp.Write(data)
	closeErr := tmp.Close()

	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(c.dir, id+".json"))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return nil
}

// load returns fs.ErrNotExist (wrapped) when the record is missing.
func (c *collection[T]) load(id string) (*T, error) {
	err := validateID(id)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.read(filepath.Join(c.dir, id+".json"))
}

func (c *collection[T]) read(path string) (*T, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated id
	if err != nil {
		return nil, err
	}

	var record T

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return &record, nil
}

func (c *collection[T]) delete(id string) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return os.Remove(filepath.Join(c.dir, id+".json"))
}

// all loads every record whose file name matches pattern (default "*.json").
func (c *collection[T]) all(pattern string) ([]*T, error) {
	if pattern == "" {
		pattern = "*.json"
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	files, err := fs.Glob(os.DirFS(c.dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	records := make([]*T, 0, len(files))

	for _, name := range files {
		record, err := c.read(filepath.Join(c.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}
