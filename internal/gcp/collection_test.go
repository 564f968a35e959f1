package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionPrefix(t *testing.T) {
	tests := []struct {
		name   string
		pr     string
		branch string
		want   string
	}{
		{"production", "", "", ""},
		{"main branch", "", "main", ""},
		{"pull request wins", "123", "feature/auth", "pr_123_"},
		{"preview branch", "", "Feature/Auth", "preview_feature-auth_"},
		{"long branch is truncated", "", "feature/abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz", "preview_feature-abcdefghijklmnopqrstuvwxyzabcdefghijklmnop_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PR_NUMBER", tt.pr)
			t.Setenv("BRANCH_NAME", tt.branch)
			assert.Equal(t, tt.want, CollectionPrefix())
		})
	}
}

func TestCollectionName(t *testing.T) {
	t.Setenv("PR_NUMBER", "7")
	t.Setenv("BRANCH_NAME", "")
	assert.Equal(t, "pr_7_assetsync-runs", CollectionName("assetsync-runs"))
}
