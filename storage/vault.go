package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

// VaultBackend stores documents in HashiCorp Vault's KV v2 secret engine.
// Document bytes are base64-encoded into a single secret field keyed by
// document ID.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault storage backend authenticated with the
// given token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "certeq")
//   - token: Vault token used for authentication
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Fetch retrieves a document by ID and kind from the KV v2 engine.
func (b *VaultBackend) Fetch(ctx context.Context, id interfaces.DocumentID, kind interfaces.DocumentKind) ([]byte, error) {
	secretPath := b.secretPath(id, kind)

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrDocumentNotFound
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrDocumentNotFound
	}
	encoded, ok := data["document"].(string)
	if !ok {
		return nil, interfaces.ErrDocumentNotFound
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document from Vault: %w", err)
	}

	b.log.Debug("Fetched document from Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(raw)))
	return raw, nil
}

// Store writes a document and returns its content ID.
func (b *VaultBackend) Store(ctx context.Context, data []byte, kind interfaces.DocumentKind) (interfaces.DocumentID, error) {
	id := interfaces.ComputeDocumentID(data)
	secretPath := b.secretPath(id, kind)

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"document": base64.StdEncoding.EncodeToString(data),
			"kind":     kind.String(),
		},
	}
	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, payload); err != nil {
		return id, fmt.Errorf("failed to store document in Vault: %w", err)
	}

	b.log.Debug("Stored document in Vault",
		slog.String("path", secretPath),
		slog.String("document_id", id.String()),
		slog.Int("size", len(data)))
	return id, nil
}

// Available checks if the Vault server is reachable and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	health, err := b.client.Sys().HealthWithContext(ctx)
	return err == nil && health != nil && !health.Sealed
}

// Name returns a unique identifier for this backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s", b.mountPath)
}

// LocationURI returns the URI that identifies this backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(id interfaces.DocumentID, kind interfaces.DocumentKind) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", b.mountPath, b.dataPath, kind.String(), id.String())
}
