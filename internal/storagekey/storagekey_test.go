package storagekey

import (
	"regexp"
	"strings"
	"testing"
)

func TestBuildMatchesDocumentedFormat(t *testing.T) {
	key := Build("u1", 1717243200123, "photo.jpg")
	want := regexp.MustCompile(`^uploads/u1/\d+-photo\.jpg$`)
	if !want.MatchString(key) {
		t.Errorf("Build = %q, want match for %s", key, want)
	}
}

func TestBuildSanitizesHostileNames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"path traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"spaces and unicode", "my file ü.txt", "my_file__.txt"},
		{"kept charset", "Report-v2.final.PDF", "Report-v2.final.PDF"},
		{"shell metacharacters", "a;rm -rf$(x).txt", "a_rm_-rf__x_.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Build("u1", 1, tt.in)
			got := strings.TrimPrefix(key, "uploads/u1/1-")
			if got != tt.want {
				t.Errorf("sanitized name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCapsKeyLength(t *testing.T) {
	long := strings.Repeat("a", 2000)
	key := Build("u1", 1, long)
	if len(key) > 1024 {
		t.Errorf("len(key) = %d, want <= 1024", len(key))
	}
}

func TestBelongsToOwner(t *testing.T) {
	key := Build("u1", 1, "a.txt")
	if !BelongsToOwner(key, "u1") {
		t.Error("key should belong to its own owner")
	}
	if BelongsToOwner(key, "u2") {
		t.Error("key should not belong to a different owner")
	}
	// "u1" must not be treated as a prefix of owner "u12".
	if BelongsToOwner("uploads/u12/1-a.txt", "u1") {
		t.Error("owner prefix check must match the full path segment")
	}
}
