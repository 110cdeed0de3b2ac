package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeSourceCheck lays out one check directory inside a source checkout.
func writeSourceCheck(t *testing.T, root, provider, service, checkID, title, description string) {
	t.Helper()
	serviceDir := filepath.Join(root, "providers", provider, "services", service)
	writeFile(t, filepath.Join(serviceDir, service+"_service.py"),
		fmt.Sprintf("class %sService:\n    pass\n", service))

	checkDir := filepath.Join(serviceDir, checkID)
	metadata := fmt.Sprintf(`{
  "Provider": %q,
  "CheckID": %q,
  "CheckTitle": %q,
  "ServiceName": %q,
  "Severity": "high",
  "ResourceType": "Other",
  "Description": %q,
  "Risk": "exposure",
  "Notes": "",
  "Categories": ["internet-exposed"]
}`, provider, checkID, title, service, description)
	writeFile(t, filepath.Join(checkDir, checkID+".metadata.json"), metadata)
	writeFile(t, filepath.Join(checkDir, checkID+".py"), "def execute():\n    return []\n")
}

func newTestStore(t *testing.T, dir string) *VectorStore {
	t.Helper()
	store, err := OpenVectorStore(dir, "fake", "fake-embed", &fakeEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestStoreBuildFromSource(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")
	writeSourceCheck(t, source, "aws", "iam", "iam_root_mfa_enabled",
		"Root account MFA", "Ensure the root account has MFA enabled")

	store := newTestStore(t, t.TempDir())
	ctx := context.Background()
	if err := store.BuildOrUpdate(ctx, source, false); err != nil {
		t.Fatal(err)
	}

	if !store.Loaded() {
		t.Fatal("expected a loaded store after build")
	}
	if got := store.Inventory().AvailableProviders(); !reflect.DeepEqual(got, []string{"aws"}) {
		t.Errorf("providers = %v", got)
	}
	if got := store.Inventory().AvailableServices("aws"); !reflect.DeepEqual(got, []string{"iam", "s3"}) {
		t.Errorf("services = %v", got)
	}
	if got := store.Inventory().AvailableChecks("aws", "s3"); !reflect.DeepEqual(got, []string{"s3_bucket_public_access"}) {
		t.Errorf("checks = %v", got)
	}

	related, err := store.RelatedChecks(ctx, "Ensure S3 buckets block all public access", 5, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	s3Checks := related["aws"]["s3"]
	if len(s3Checks) == 0 || s3Checks[0] != "s3_bucket_public_access" {
		t.Errorf("related = %v", related)
	}
}

func TestStoreRebuildRequiresOverwrite(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")

	store := newTestStore(t, t.TempDir())
	ctx := context.Background()
	if err := store.BuildOrUpdate(ctx, source, false); err != nil {
		t.Fatal(err)
	}

	err := store.BuildOrUpdate(ctx, source, false)
	if !errors.Is(err, ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
	if err := store.BuildOrUpdate(ctx, source, true); err != nil {
		t.Fatal(err)
	}
}

func TestStoreIncrementalUpdateEmbedsOnlyChanges(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_versioning",
		"S3 bucket versioning", "Ensure S3 buckets have versioning enabled")

	embedder := &fakeEmbedder{}
	dir := t.TempDir()
	store, err := OpenVectorStore(dir, "fake", "fake-embed", embedder)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.BuildOrUpdate(ctx, source, false); err != nil {
		t.Fatal(err)
	}
	afterBuild := embedder.calls

	// unchanged source: the rebuild must not embed anything
	if err := store.BuildOrUpdate(ctx, source, true); err != nil {
		t.Fatal(err)
	}
	if embedder.calls != afterBuild {
		t.Errorf("unchanged rebuild embedded %d documents", embedder.calls-afterBuild)
	}

	// touch one metadata file: exactly one document is re-embedded
	metaPath := filepath.Join(source, "providers", "aws", "services", "s3",
		"s3_bucket_versioning", "s3_bucket_versioning.metadata.json")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, metaPath, string(raw[:len(raw)-1])+", \"Notes\": \"updated\"}")
	if err := store.BuildOrUpdate(ctx, source, true); err != nil {
		t.Fatal(err)
	}
	if embedder.calls != afterBuild+1 {
		t.Errorf("expected exactly one re-embed, got %d", embedder.calls-afterBuild)
	}
}

func TestStoreDeletionSweep(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_versioning",
		"S3 bucket versioning", "Ensure S3 buckets have versioning enabled")

	store := newTestStore(t, t.TempDir())
	ctx := context.Background()
	if err := store.BuildOrUpdate(ctx, source, false); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(source, "providers", "aws", "services", "s3", "s3_bucket_versioning")); err != nil {
		t.Fatal(err)
	}
	if err := store.BuildOrUpdate(ctx, source, true); err != nil {
		t.Fatal(err)
	}

	if got := store.Inventory().AvailableChecks("aws", "s3"); !reflect.DeepEqual(got, []string{"s3_bucket_public_access"}) {
		t.Errorf("checks after sweep = %v", got)
	}
	hits, err := store.index.Retrieve(ctx, "Ensure S3 buckets have versioning enabled", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, hit := range hits {
		if hit.Document.ID == "aws_s3_bucket_versioning" {
			t.Error("deleted check still retrievable")
		}
	}

	// delete the whole provider tree: the provider node goes away too
	if err := os.RemoveAll(filepath.Join(source, "providers", "aws")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "providers", ".keep"), "")
	if err := store.BuildOrUpdate(ctx, source, true); err != nil {
		t.Fatal(err)
	}
	if got := store.Inventory().AvailableProviders(); len(got) != 0 {
		t.Errorf("providers after provider sweep = %v", got)
	}
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")

	dir := t.TempDir()
	store := newTestStore(t, dir)
	ctx := context.Background()
	if err := store.BuildOrUpdate(ctx, source, false); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, SidecarName)); err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}

	// reopen without passing the model identity: it comes from the sidecar
	reopened, err := OpenVectorStore(dir, "", "", &fakeEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Loaded() {
		t.Fatal("expected reopened store to be loaded")
	}
	if got := reopened.Inventory().AvailableChecks("aws", "s3"); !reflect.DeepEqual(got, []string{"s3_bucket_public_access"}) {
		t.Errorf("reopened checks = %v", got)
	}
	code, err := reopened.Inventory().ServiceCode("aws", "s3")
	if err != nil {
		t.Fatal(err)
	}
	if code == "" {
		t.Error("expected reopened store to retain service code")
	}
}

func TestStoreEmbeddingIdentity(t *testing.T) {
	source := t.TempDir()
	writeSourceCheck(t, source, "aws", "s3", "s3_bucket_public_access",
		"S3 bucket public access", "Ensure S3 buckets block all public access")

	dir := t.TempDir()
	store := newTestStore(t, dir)
	if err := store.BuildOrUpdate(context.Background(), source, false); err != nil {
		t.Fatal(err)
	}

	_, err := OpenVectorStore(dir, "fake", "some-other-model", &fakeEmbedder{})
	if !errors.Is(err, ErrEmbeddingModelMismatch) {
		t.Fatalf("expected ErrEmbeddingModelMismatch, got %v", err)
	}

	// a brand-new store requires a full model identity
	_, err = OpenVectorStore(t.TempDir(), "", "", &fakeEmbedder{})
	if !errors.Is(err, ErrMissingEmbeddingModel) {
		t.Fatalf("expected ErrMissingEmbeddingModel, got %v", err)
	}
}
