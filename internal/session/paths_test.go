package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".getchat", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "getchat.db")) {
		t.Errorf("DBPath(test) = %q, want suffix profiles/test/getchat.db", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix profiles/test/LOCK", got)
	}
}

func TestCredentialPath(t *testing.T) {
	got := CredentialPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "credential.json")) {
		t.Errorf("CredentialPath(test) = %q, want suffix profiles/test/credential.json", got)
	}
}
