package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/checkforge/pkg/llm"
)

const (
	// SidecarName is the JSON file holding the run metadata and the check
	// inventory, written next to the index artifacts.
	SidecarName = "db_metadata.json"

	indexArtifactName = "index_store.json"

	timeLayout = "2006-01-02 15:04:05"
)

var (
	// ErrIndexExists is returned by BuildOrUpdate when an index is already
	// present and overwrite was not requested. Rebuilding by accident is
	// expensive: a full build embeds every check.
	ErrIndexExists = errors.New("an index already exists in the vector store, set overwrite to update it")

	// ErrEmbeddingModelMismatch is returned when the persisted index was
	// built with a different embedding model than the one configured now.
	// Mixing embedding spaces silently would make every similarity score
	// meaningless.
	ErrEmbeddingModelMismatch = errors.New("persisted index was built with a different embedding model")

	// ErrMissingEmbeddingModel is returned when a new store is opened
	// without an embedding model identity.
	ErrMissingEmbeddingModel = errors.New("embedding model provider and reference are required to create a new index")
)

// VectorStore composes the check inventory with the semantic index and the
// persisted run metadata. It is loaded from and saved to a single directory.
type VectorStore struct {
	dir       string
	inventory *Inventory
	index     *SemanticIndex

	embeddingProvider  string
	embeddingReference string
	creationDate       string
	lastUpdated        string

	// Writers must be serialized; rebuilds are an administrative
	// operation, not interleaved with live retrieval traffic.
	writeMu sync.Mutex

	now func() time.Time
}

type sidecar struct {
	CreationDate   string     `json:"creation_date"`
	LastUpdated    string     `json:"last_updated"`
	ModelProvider  string     `json:"model_provider"`
	ModelReference string     `json:"model_reference"`
	CheckInventory *Inventory `json:"check_inventory"`
}

// OpenVectorStore loads the store from dir, or prepares an empty one when no
// sidecar file is present. embeddingProvider and embeddingReference identify
// the embedding model the caller has configured; when a persisted index
// exists they must match the identity recorded at build time.
func OpenVectorStore(dir, embeddingProvider, embeddingReference string, embedder llm.Embedder) (*VectorStore, error) {
	s := &VectorStore{
		dir:                dir,
		inventory:          NewInventory(),
		index:              NewSemanticIndex(embedder),
		embeddingProvider:  embeddingProvider,
		embeddingReference: embeddingReference,
		now:                time.Now,
	}

	sidecarPath := filepath.Join(dir, SidecarName)
	raw, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		if embeddingProvider == "" || embeddingReference == "" {
			return nil, ErrMissingEmbeddingModel
		}
		s.creationDate = s.now().Format(timeLayout)
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sidecarPath, err)
	}
	if embeddingProvider != "" && embeddingReference != "" &&
		(meta.ModelProvider != embeddingProvider || meta.ModelReference != embeddingReference) {
		return nil, fmt.Errorf("%w: index built with %s/%s, configured %s/%s",
			ErrEmbeddingModelMismatch, meta.ModelProvider, meta.ModelReference, embeddingProvider, embeddingReference)
	}

	s.embeddingProvider = meta.ModelProvider
	s.embeddingReference = meta.ModelReference
	s.creationDate = meta.CreationDate
	s.lastUpdated = meta.LastUpdated
	if meta.CheckInventory != nil {
		s.inventory = meta.CheckInventory
	}
	if err := s.index.LoadFrom(filepath.Join(dir, indexArtifactName)); err != nil {
		return nil, fmt.Errorf("loading index artifacts: %w", err)
	}
	return s, nil
}

// Inventory exposes the check inventory for read access.
func (s *VectorStore) Inventory() *Inventory {
	return s.inventory
}

// Loaded reports whether the store holds a built index.
func (s *VectorStore) Loaded() bool {
	return s.index.Len() > 0
}

// BuildOrUpdate synchronizes the store against a source repository checkout.
// On first build every check is embedded, which is the only place bulk
// embedding happens. On later runs overwrite must be set, and only checks
// whose metadata actually changed are re-embedded; checks whose source path
// disappeared are retracted from the index.
func (s *VectorStore) BuildOrUpdate(ctx context.Context, sourceRoot string, overwrite bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Loaded() && !overwrite {
		return ErrIndexExists
	}

	updated, err := s.syncFromSource(sourceRoot)
	if err != nil {
		return err
	}
	deleted, err := s.sweepDeleted(sourceRoot)
	if err != nil {
		return err
	}

	for _, doc := range updated {
		if err := s.index.Upsert(ctx, doc); err != nil {
			return err
		}
	}
	for _, id := range deleted {
		s.index.Delete(id)
	}

	return s.save()
}

// RelatedChecks retrieves check IDs semantically similar to the description,
// grouped by provider and service.
func (s *VectorStore) RelatedChecks(ctx context.Context, description string, topK int, cutoff float64) (map[string]map[string][]string, error) {
	hits, err := s.index.Retrieve(ctx, description, topK, cutoff)
	if err != nil {
		return nil, fmt.Errorf("retrieving related checks: %w", err)
	}
	related := make(map[string]map[string][]string)
	for _, hit := range hits {
		provider := hit.Document.Metadata["provider"]
		service := hit.Document.Metadata["service_name"]
		checkID := hit.Document.Metadata["check_id"]
		if related[provider] == nil {
			related[provider] = make(map[string][]string)
		}
		related[provider][service] = append(related[provider][service], checkID)
	}
	return related, nil
}

// CheckExists reports whether an indexed check already covers the
// description, using the existence oracle over retrieved context.
func (s *VectorStore) CheckExists(ctx context.Context, client llm.Client, description string, cutoff float64) (bool, error) {
	return s.index.Exists(ctx, client, description, cutoff)
}

// save writes the index artifacts first and the sidecar last, so a crash in
// between leaves a stale sidecar that fails to match on next load instead of
// a sidecar describing artifacts that were never written.
func (s *VectorStore) save() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	if err := s.index.SaveTo(filepath.Join(s.dir, indexArtifactName)); err != nil {
		return fmt.Errorf("storing index artifacts: %w", err)
	}

	s.lastUpdated = s.now().Format(timeLayout)
	meta := sidecar{
		CreationDate:   s.creationDate,
		LastUpdated:    s.lastUpdated,
		ModelProvider:  s.embeddingProvider,
		ModelReference: s.embeddingReference,
		CheckInventory: s.inventory,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, SidecarName), raw, 0644)
}

// syncFromSource walks the source tree and updates the inventory, returning
// one document per check whose metadata changed. Documents are built from
// metadata only, so code-only changes update the inventory without touching
// the index.
func (s *VectorStore) syncFromSource(sourceRoot string) ([]Document, error) {
	providersDir := filepath.Join(sourceRoot, "providers")
	providers, err := os.ReadDir(providersDir)
	if err != nil {
		return nil, fmt.Errorf("source providers directory not found: %w", err)
	}

	var updated []Document
	for _, providerEntry := range providers {
		if !providerEntry.IsDir() {
			continue
		}
		provider := providerEntry.Name()
		s.inventory.AddProvider(provider)

		servicesDir := filepath.Join(providersDir, provider, "services")
		services, err := os.ReadDir(servicesDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, serviceEntry := range services {
			if !serviceEntry.IsDir() {
				continue
			}
			service := serviceEntry.Name()
			serviceDir := filepath.Join(servicesDir, service)

			if _, err := s.inventory.SyncService(filepath.Join(serviceDir, service+"_service.py")); err != nil {
				return nil, err
			}

			checks, err := os.ReadDir(serviceDir)
			if err != nil {
				return nil, err
			}
			for _, checkEntry := range checks {
				if !checkEntry.IsDir() {
					continue
				}
				checkID := checkEntry.Name()
				checkDir := filepath.Join(serviceDir, checkID)
				metadataPath := filepath.Join(checkDir, checkID+".metadata.json")
				if _, err := os.Stat(metadataPath); err != nil {
					continue
				}

				if _, err := s.inventory.SyncCheckCode(provider, service, checkID, filepath.Join(checkDir, checkID+".py")); err != nil {
					return nil, err
				}
				if _, err := s.inventory.SyncCheckFixer(provider, service, checkID, filepath.Join(checkDir, checkID+"_fixer.py")); err != nil {
					return nil, err
				}

				changed, err := s.inventory.SyncCheckMetadata(provider, service, checkID, metadataPath)
				if err != nil {
					return nil, err
				}
				if changed {
					metadata, err := s.inventory.CheckMetadata(provider, service, checkID)
					if err != nil {
						return nil, err
					}
					updated = append(updated, buildDocument(metadata))
				}
			}
		}
	}
	return updated, nil
}

// sweepDeleted walks the inventory and removes every provider, service and
// check whose source path no longer exists, returning the retracted document
// IDs. The source walk only sees what is present, so deletions need this
// second sweep in the opposite direction.
func (s *VectorStore) sweepDeleted(sourceRoot string) ([]string, error) {
	var deleted []string
	for _, provider := range s.inventory.AvailableProviders() {
		providerPath := filepath.Join(sourceRoot, "providers", provider)
		if _, err := os.Stat(providerPath); os.IsNotExist(err) {
			for _, service := range s.inventory.AvailableServices(provider) {
				for _, checkID := range s.inventory.AvailableChecks(provider, service) {
					deleted = append(deleted, provider+"_"+checkID)
				}
			}
			s.inventory.DeleteProvider(provider)
			continue
		}
		for _, service := range s.inventory.AvailableServices(provider) {
			servicePath := filepath.Join(providerPath, "services", service)
			if _, err := os.Stat(servicePath); os.IsNotExist(err) {
				for _, checkID := range s.inventory.AvailableChecks(provider, service) {
					deleted = append(deleted, provider+"_"+checkID)
				}
				s.inventory.DeleteService(provider, service)
				continue
			}
			for _, checkID := range s.inventory.AvailableChecks(provider, service) {
				checkPath := filepath.Join(servicePath, checkID)
				if _, err := os.Stat(checkPath); os.IsNotExist(err) {
					deleted = append(deleted, provider+"_"+checkID)
					s.inventory.DeleteCheck(provider, checkID)
				}
			}
		}
	}
	return deleted, nil
}

// buildDocument renders a check's metadata into the natural-language text
// that gets embedded, keyed by the stable "{provider}_{checkID}" identity.
func buildDocument(metadata map[string]interface{}) Document {
	provider := metaString(metadata, "Provider")
	checkID := metaString(metadata, "CheckID")

	text := fmt.Sprintf(
		"The check '%s' titled '%s' applies to the '%s' service in the provider '%s'. It has a severity of '%s'\n The description states: '%s' The risk is '%s' Additional notes: '%s'",
		checkID,
		metaString(metadata, "CheckTitle"),
		metaString(metadata, "ServiceName"),
		provider,
		metaString(metadata, "Severity"),
		metaString(metadata, "Description"),
		metaString(metadata, "Risk"),
		metaString(metadata, "Notes"),
	)

	return Document{
		ID:   provider + "_" + checkID,
		Text: text,
		Metadata: map[string]string{
			"provider":      provider,
			"service_name":  metaString(metadata, "ServiceName"),
			"check_id":      checkID,
			"severity":      metaString(metadata, "Severity"),
			"resource_type": metaString(metadata, "ResourceType"),
			"categories":    metaStringList(metadata, "Categories"),
		},
	}
}

func metaString(metadata map[string]interface{}, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func metaStringList(metadata map[string]interface{}, key string) string {
	list, ok := metadata[key].([]interface{})
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
