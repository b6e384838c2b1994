package storage

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidPath is returned when a stored file URL cannot be mapped to an
// object inside the configured bucket.
var ErrInvalidPath = errors.New("invalid storage path")

// ObjectPath derives the object name inside bucket from a document's stored
// file URL. Accepted forms:
//
//	gs://<bucket>/<object>
//	https://host/.../<bucket>/<object>   (public or signed storage URLs)
//	<bucket>/<object>
//	<object>
func ObjectPath(fileURL, bucket string) (string, error) {
	raw := strings.TrimSpace(fileURL)
	if raw == "" {
		return "", ErrInvalidPath
	}

	var p string
	switch {
	case strings.HasPrefix(raw, "gs://"):
		rest := strings.TrimPrefix(raw, "gs://")
		b, obj, ok := strings.Cut(rest, "/")
		if !ok || b != bucket {
			return "", ErrInvalidPath
		}
		p = obj
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return "", ErrInvalidPath
		}
		marker := "/" + bucket + "/"
		idx := strings.Index(u.Path, marker)
		if idx < 0 {
			return "", ErrInvalidPath
		}
		p = u.Path[idx+len(marker):]
	default:
		p = strings.TrimPrefix(raw, bucket+"/")
	}

	return cleanObject(p)
}

func cleanObject(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", ErrInvalidPath
		}
	}
	cleaned := path.Clean(p)
	if cleaned != p {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
