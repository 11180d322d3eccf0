package image

import "testing"

func TestValidatorIsFetchable(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/cat.png", true},
		{"http://example.com/photo.JPEG", true},
		{"https://example.com/a/b/c.webp?size=large", true},
		{"https://example.com/api/image?id=4", true},
		{"https://example.com/render?type=image", true},
		{"https://images.unsplash.com/photo-12345", true},
		{"https://sub.i.imgur.com/abc", true},
		{"https://example.com/page.html", false},
		{"https://example.com/download", false},
		{"ftp://example.com/cat.png", false},
		{"/relative/cat.png", false},
		{"cat.png", false},
		{"data:image/png;base64,AAAA", false},
		{"http://%zz/cat.png", false},
		{"https://notimgur.com/abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := v.IsFetchable(tt.url); got != tt.want {
				t.Errorf("IsFetchable(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidatorCustomHosts(t *testing.T) {
	v := NewValidator([]string{" CDN.Example.org ", ""})

	if !v.IsFetchable("https://cdn.example.org/abc123") {
		t.Error("expected custom host to be fetchable")
	}
	if !v.IsFetchable("https://eu.cdn.example.org/abc123") {
		t.Error("expected subdomain of custom host to be fetchable")
	}
	if v.IsFetchable("https://images.unsplash.com/photo-1") {
		t.Error("expected custom list to replace the defaults")
	}
}

func TestExtForMimeType(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
		"image/png":     ".png",
		"text/html":     ".png",
	}
	for mimeType, want := range tests {
		if got := extForMimeType(mimeType); got != want {
			t.Errorf("extForMimeType(%q) = %q, want %q", mimeType, got, want)
		}
	}
}
