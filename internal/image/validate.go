package image

import (
	"net/url"
	"path"
	"strings"
)

// DefaultAllowedHosts lists image CDNs whose URLs often lack an extension.
var DefaultAllowedHosts = []string{
	"images.unsplash.com",
	"source.unsplash.com",
	"picsum.photos",
	"i.imgur.com",
	"upload.wikimedia.org",
	"pbs.twimg.com",
	"lh3.googleusercontent.com",
	"cdn.pixabay.com",
	"images.pexels.com",
	"placehold.co",
	"via.placeholder.com",
	"dummyimage.com",
}

// imageExtensions are the path extensions accepted without further checks.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
	".avif": true,
	".tif":  true,
	".tiff": true,
	".ico":  true,
}

// Validator decides whether a URL is plausibly a fetchable image. It is a
// heuristic; the real content type is only known after the fetch.
type Validator struct {
	allowedHosts []string
}

// NewValidator creates a validator; a nil host list uses DefaultAllowedHosts.
func NewValidator(allowedHosts []string) *Validator {
	if allowedHosts == nil {
		allowedHosts = DefaultAllowedHosts
	}
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Validator{allowedHosts: hosts}
}

// IsFetchable applies the checks in order, first match wins: absolute http(s)
// URL, image extension, "image" keyword in path or query, allowlisted host.
func (v *Validator) IsFetchable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if imageExtensions[strings.ToLower(path.Ext(u.Path))] {
		return true
	}

	if strings.Contains(strings.ToLower(u.Path), "image") ||
		strings.Contains(strings.ToLower(u.RawQuery), "image") {
		return true
	}

	return v.hostAllowed(strings.ToLower(u.Hostname()))
}

func (v *Validator) hostAllowed(host string) bool {
	for _, allowed := range v.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// extForMimeType picks a file extension when saving a fetched image to disk.
func extForMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/avif":
		return ".avif"
	case "image/bmp":
		return ".bmp"
	default:
		return ".png"
	}
}
