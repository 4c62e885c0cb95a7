package oauth

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape for first-party and service-account clients
// provisioned at startup. Secrets appear only as bcrypt hashes.
type seedFile struct {
	Clients []seedClient `yaml:"clients"`
}

type seedClient struct {
	ClientID     string   `yaml:"client_id"`
	SecretHash   string   `yaml:"secret_hash"`
	Name         string   `yaml:"name"`
	RedirectURIs []string `yaml:"redirect_uris"`
	GrantTypes   []string `yaml:"grant_types"`
	Scopes       []string `yaml:"scopes"`
	Public       bool     `yaml:"public"`
}

// SeedClients upserts the clients declared in a YAML file. Returns how many
// were applied.
func SeedClients(ctx context.Context, store Storage, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parsing seed file: %w", err)
	}

	for idx, sc := range file.Clients {
		if sc.ClientID == "" {
			return 0, fmt.Errorf("seed client %d: client_id is required", idx)
		}
		if sc.Name == "" {
			return 0, fmt.Errorf("seed client %s: name is required", sc.ClientID)
		}
		if !sc.Public && sc.SecretHash == "" {
			return 0, fmt.Errorf("seed client %s: confidential clients need secret_hash", sc.ClientID)
		}
		if sc.Public && sc.SecretHash != "" {
			return 0, fmt.Errorf("seed client %s: public clients must not carry a secret", sc.ClientID)
		}
		for _, uri := range sc.RedirectURIs {
			if err := ValidateRedirectURI(uri); err != nil {
				return 0, fmt.Errorf("seed client %s: %w", sc.ClientID, err)
			}
		}

		grantTypes := sc.GrantTypes
		if len(grantTypes) == 0 {
			grantTypes = []string{GrantAuthorizationCode, GrantRefreshToken}
		}
		scopes := sc.Scopes
		if len(scopes) == 0 {
			scopes = []string{"read"}
		}

		client := &Client{
			ClientID:         sc.ClientID,
			ClientSecretHash: sc.SecretHash,
			Name:             sc.Name,
			RedirectURIs:     sc.RedirectURIs,
			GrantTypes:       grantTypes,
			Scopes:           scopes,
			IsActive:         true,
			IsPublic:         sc.Public,
		}
		if err := store.SaveClient(ctx, client); err != nil {
			return 0, fmt.Errorf("seed client %s: %w", sc.ClientID, err)
		}
	}
	return len(file.Clients), nil
}
