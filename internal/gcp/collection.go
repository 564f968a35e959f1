// Package gcp holds helpers shared by the Cloud Storage and Firestore backends.
package gcp

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
)

var branchSanitizer = regexp.MustCompile(`[^a-z0-9-]`)

// CollectionPrefix isolates preview deployments from production data.
// PR_NUMBER yields "pr_<n>_"; otherwise a BRANCH_NAME other than main yields
// "preview_<branch>_" with the branch lowercased, reduced to [a-z0-9-] and
// cut to 50 characters. Production uses no prefix.
func CollectionPrefix() string {
	if prNumber := os.Getenv("PR_NUMBER"); prNumber != "" {
		return fmt.Sprintf("pr_%s_", prNumber)
	}

	if branchName := os.Getenv("BRANCH_NAME"); branchName != "" && branchName != "main" {
		sanitized := branchSanitizer.ReplaceAllString(strings.ToLower(branchName), "-")
		if len(sanitized) > 50 {
			sanitized = sanitized[:50]
		}
		return fmt.Sprintf("preview_%s_", sanitized)
	}

	return ""
}

// CollectionName returns the prefixed collection name
func CollectionName(base string) string {
	return CollectionPrefix() + base
}

// Clients bundles the Google Cloud clients used by the sync backends
type Clients struct {
	Storage   *storage.Client
	Firestore *firestore.Client
}

// NewClients connects to Cloud Storage and Firestore. Emulator hosts are
// picked up from STORAGE_EMULATOR_HOST and FIRESTORE_EMULATOR_HOST.
func NewClients(ctx context.Context, projectID string) (*Clients, error) {
	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	fsClient, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		gcsClient.Close()
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Clients{Storage: gcsClient, Firestore: fsClient}, nil
}

// Close closes both clients
func (c *Clients) Close() error {
	fsErr := c.Firestore.Close()
	if err := c.Storage.Close(); err != nil {
		return err
	}
	return fsErr
}
