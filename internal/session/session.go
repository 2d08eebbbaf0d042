package session

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/opsdeck/booking-sync/internal/config"
	"github.com/opsdeck/booking-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoCredential = errors.New("session credential is not available")
)

// Identity is the (tenant, credential) pair the realtime channel is scoped to.
// Both fields are required before a connection attempt is valid.
type Identity struct {
	TenantID   string
	Credential string
}

func (i Identity) Valid() bool {
	return i.TenantID != "" && i.Credential != ""
}

// Equal reports whether two identities describe the same session.
func (i Identity) Equal(other Identity) bool {
	return i.TenantID == other.TenantID && i.Credential == other.Credential
}

func (i Identity) MarshalLog() interface{} {
	return map[string]interface{}{"tenant_id": i.TenantID}
}

// Provider supplies the current session identity.  Implementations are
// re-evaluated by the supervisor whenever the session might have changed.
type Provider interface {
	Identity(ctx context.Context) (Identity, error)
}

const (
	StaticProviderImpl = "static"
	FileProviderImpl   = "credential_file"
)

func NewProvider(cfg *config.Config) (Provider, error) {
	var provider Provider

	switch {
	case cfg.CredentialFile != "":
		provider = &FileCredentialProvider{TenantID: cfg.TenantId, CredentialFile: cfg.CredentialFile}
	case cfg.Credential != "":
		provider = &StaticProvider{Value: Identity{TenantID: cfg.TenantId, Credential: cfg.Credential}}
	default:
		return nil, ErrNoCredential
	}

	if cfg.CredentialTenantClaim != "" {
		provider = &ClaimTenantProvider{Delegate: provider, TenantClaim: cfg.CredentialTenantClaim}
	}

	return provider, nil
}

// StaticProvider returns a fixed identity supplied via configuration.
type StaticProvider struct {
	Value Identity
}

func (p *StaticProvider) Identity(ctx context.Context) (Identity, error) {
	return p.Value, nil
}

// FileCredentialProvider reads the bearer credential from a file on every call
// so that a rotated credential is picked up the next time the supervisor
// re-evaluates the session.
type FileCredentialProvider struct {
	TenantID       string
	CredentialFile string
}

func (p *FileCredentialProvider) Identity(ctx context.Context) (Identity, error) {
	logger.Log.Debug("Loading session credential from a file: ", p.CredentialFile)

	credentialBytes, err := os.ReadFile(p.CredentialFile)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Could not read credential from file")
		return Identity{}, err
	}

	credential := strings.TrimSpace(string(credentialBytes))
	if credential == "" {
		return Identity{}, ErrNoCredential
	}

	return Identity{TenantID: p.TenantID, Credential: credential}, nil
}
