package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Credential is the stored bearer token and the user it belongs to.
// Token issuance itself is a login flow outside the daemon; the daemon only
// reads, and on expiry clears, this file.
type Credential struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// LoadCredential reads the stored credential for a profile. Returns
// (nil, nil) when none is stored.
func LoadCredential(profile string) (*Credential, error) {
	data, err := os.ReadFile(CredentialPath(profile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	if c.Token == "" || c.UserID == "" {
		return nil, fmt.Errorf("credential file missing token or user_id")
	}
	return &c, nil
}

// SaveCredential stores a credential with owner-only permissions.
func SaveCredential(profile string, c *Credential) error {
	if err := EnsureDir(profile); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(CredentialPath(profile), data, 0600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// ClearCredential removes the stored credential. Used by the forced-logout
// path; missing file is not an error.
func ClearCredential(profile string) error {
	err := os.Remove(CredentialPath(profile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
