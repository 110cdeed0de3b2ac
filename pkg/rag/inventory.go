package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CheckRecord holds the packed artifacts of a single check.
type CheckRecord struct {
	Metadata string `json:"metadata"`
	Code     string `json:"code"`
	Fixer    string `json:"fixer"`
}

// ServiceEntry holds the packed source of a service and its checks.
type ServiceEntry struct {
	Description string                  `json:"description"`
	Code        string                  `json:"code"`
	Checks      map[string]*CheckRecord `json:"checks"`
}

// Inventory manages the code and metadata of checks and services. It is a
// hierarchical map provider -> service -> checks, with all textual content
// packed through the codec. A check can only live under an existing service,
// and a service under an existing provider.
type Inventory struct {
	data  map[string]map[string]*ServiceEntry
	codec Codec
}

func NewInventory() *Inventory {
	return &Inventory{
		data:  make(map[string]map[string]*ServiceEntry),
		codec: GzipBase64Codec{},
	}
}

func (inv *Inventory) MarshalJSON() ([]byte, error) {
	return json.Marshal(inv.data)
}

func (inv *Inventory) UnmarshalJSON(raw []byte) error {
	inv.codec = GzipBase64Codec{}
	inv.data = make(map[string]map[string]*ServiceEntry)
	return json.Unmarshal(raw, &inv.data)
}

// AvailableProviders returns the known provider names, sorted.
func (inv *Inventory) AvailableProviders() []string {
	providers := make([]string, 0, len(inv.data))
	for p := range inv.data {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// AvailableServices returns the known services of a provider, sorted.
// Unknown providers yield an empty list, not an error.
func (inv *Inventory) AvailableServices(provider string) []string {
	services := make([]string, 0, len(inv.data[provider]))
	for s := range inv.data[provider] {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// AvailableChecks returns the known check IDs of a service, sorted.
func (inv *Inventory) AvailableChecks(provider, service string) []string {
	entry := inv.data[provider][service]
	if entry == nil {
		return nil
	}
	checks := make([]string, 0, len(entry.Checks))
	for id := range entry.Checks {
		checks = append(checks, id)
	}
	sort.Strings(checks)
	return checks
}

// ServiceCode returns the unpacked source of a service, empty if absent.
func (inv *Inventory) ServiceCode(provider, service string) (string, error) {
	entry := inv.data[provider][service]
	if entry == nil {
		return "", nil
	}
	return inv.codec.Unpack(entry.Code)
}

// CheckMetadata returns the parsed metadata of a check, empty map if absent.
func (inv *Inventory) CheckMetadata(provider, service, checkID string) (map[string]interface{}, error) {
	record := inv.checkRecord(provider, service, checkID)
	if record == nil {
		return map[string]interface{}{}, nil
	}
	text, err := inv.codec.Unpack(record.Metadata)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return map[string]interface{}{}, nil
	}
	metadata := map[string]interface{}{}
	if err := json.Unmarshal([]byte(text), &metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata for %s/%s/%s: %v", ErrCorruptBlob, provider, service, checkID, err)
	}
	return metadata, nil
}

// CheckCode returns the unpacked code of a check, empty if absent.
func (inv *Inventory) CheckCode(provider, service, checkID string) (string, error) {
	record := inv.checkRecord(provider, service, checkID)
	if record == nil {
		return "", nil
	}
	return inv.codec.Unpack(record.Code)
}

// CheckFixer returns the unpacked fixer of a check, empty if absent.
func (inv *Inventory) CheckFixer(provider, service, checkID string) (string, error) {
	record := inv.checkRecord(provider, service, checkID)
	if record == nil {
		return "", nil
	}
	return inv.codec.Unpack(record.Fixer)
}

func (inv *Inventory) checkRecord(provider, service, checkID string) *CheckRecord {
	entry := inv.data[provider][service]
	if entry == nil {
		return nil
	}
	return entry.Checks[checkID]
}

// AddProvider adds an empty provider. Returns false if it already exists.
func (inv *Inventory) AddProvider(provider string) bool {
	if _, ok := inv.data[provider]; ok {
		return false
	}
	inv.data[provider] = make(map[string]*ServiceEntry)
	return true
}

// AddService adds an empty service under an existing provider.
func (inv *Inventory) AddService(provider, service string) (bool, error) {
	services, ok := inv.data[provider]
	if !ok {
		return false, fmt.Errorf("provider %s does not exist", provider)
	}
	if _, ok := services[service]; ok {
		return false, nil
	}
	services[service] = &ServiceEntry{Checks: make(map[string]*CheckRecord)}
	return true, nil
}

// AddCheck adds an empty check record under an existing service.
func (inv *Inventory) AddCheck(provider, service, checkID string) (bool, error) {
	services, ok := inv.data[provider]
	if !ok {
		return false, fmt.Errorf("provider %s does not exist", provider)
	}
	entry, ok := services[service]
	if !ok {
		return false, fmt.Errorf("service %s does not exist", service)
	}
	if _, ok := entry.Checks[checkID]; ok {
		return false, nil
	}
	entry.Checks[checkID] = &CheckRecord{}
	return true, nil
}

// SyncService updates the service code from its source file. The provider and
// service names are derived from the file location
// (providers/{provider}/services/{service}/{service}_service.py). Nodes are
// created on first sight; the stored code is rewritten only when the source
// content differs.
func (inv *Inventory) SyncService(serviceFilePath string) (bool, error) {
	dir := filepath.Dir(serviceFilePath)
	service := filepath.Base(dir)
	provider := filepath.Base(filepath.Dir(filepath.Dir(dir)))

	inv.AddProvider(provider)
	if _, err := inv.AddService(provider, service); err != nil {
		return false, err
	}

	content, err := os.ReadFile(serviceFilePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	stored, err := inv.ServiceCode(provider, service)
	if err != nil {
		return false, err
	}
	if string(content) == stored {
		return false, nil
	}

	packed, err := inv.codec.Pack(string(content))
	if err != nil {
		return false, err
	}
	inv.data[provider][service].Code = packed
	return true, nil
}

// SyncCheckMetadata updates the metadata of a check from its source file,
// creating an empty check record if the check ID is new. Metadata comparison
// is structural, so formatting-only changes in the source file do not count
// as updates.
func (inv *Inventory) SyncCheckMetadata(provider, service, checkID, filePath string) (bool, error) {
	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	normalized, err := compactJSON(content)
	if err != nil {
		return false, fmt.Errorf("parsing metadata file %s: %w", filePath, err)
	}

	if _, err := inv.ensureCheck(provider, service, checkID); err != nil {
		return false, err
	}

	stored, err := inv.codec.Unpack(inv.data[provider][service].Checks[checkID].Metadata)
	if err != nil {
		return false, err
	}
	if normalized == stored {
		return false, nil
	}

	packed, err := inv.codec.Pack(normalized)
	if err != nil {
		return false, err
	}
	inv.data[provider][service].Checks[checkID].Metadata = packed
	return true, nil
}

// SyncCheckCode updates the code of a check from its source file.
func (inv *Inventory) SyncCheckCode(provider, service, checkID, filePath string) (bool, error) {
	return inv.syncCheckField(provider, service, checkID, filePath, func(r *CheckRecord) *string { return &r.Code })
}

// SyncCheckFixer updates the fixer of a check from its source file.
func (inv *Inventory) SyncCheckFixer(provider, service, checkID, filePath string) (bool, error) {
	return inv.syncCheckField(provider, service, checkID, filePath, func(r *CheckRecord) *string { return &r.Fixer })
}

func (inv *Inventory) syncCheckField(provider, service, checkID, filePath string, field func(*CheckRecord) *string) (bool, error) {
	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	record, err := inv.ensureCheck(provider, service, checkID)
	if err != nil {
		return false, err
	}

	slot := field(record)
	stored, err := inv.codec.Unpack(*slot)
	if err != nil {
		return false, err
	}
	if string(content) == stored {
		return false, nil
	}

	packed, err := inv.codec.Pack(string(content))
	if err != nil {
		return false, err
	}
	*slot = packed
	return true, nil
}

func (inv *Inventory) ensureCheck(provider, service, checkID string) (*CheckRecord, error) {
	entry := inv.data[provider][service]
	if entry == nil {
		return nil, fmt.Errorf("service %s/%s does not exist", provider, service)
	}
	record, ok := entry.Checks[checkID]
	if !ok {
		record = &CheckRecord{}
		entry.Checks[checkID] = record
	}
	return record, nil
}

// DeleteProvider removes a provider. Returns false if it was already absent.
func (inv *Inventory) DeleteProvider(provider string) bool {
	if _, ok := inv.data[provider]; !ok {
		return false
	}
	delete(inv.data, provider)
	return true
}

// DeleteService removes a service. Returns false if it was already absent.
func (inv *Inventory) DeleteService(provider, service string) bool {
	services, ok := inv.data[provider]
	if !ok {
		return false
	}
	if _, ok := services[service]; !ok {
		return false
	}
	delete(services, service)
	return true
}

// DeleteCheck removes a check. The service is derived from the check ID
// prefix. Returns false if the check was already absent.
func (inv *Inventory) DeleteCheck(provider, checkID string) bool {
	service := strings.SplitN(checkID, "_", 2)[0]
	entry := inv.data[provider][service]
	if entry == nil {
		return false
	}
	if _, ok := entry.Checks[checkID]; !ok {
		return false
	}
	delete(entry.Checks, checkID)
	return true
}

func compactJSON(raw []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
