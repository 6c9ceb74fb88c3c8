package crates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/cratestack/pkg/buildinfo"
	"github.com/matzehuels/cratestack/pkg/cache"
	"github.com/matzehuels/cratestack/pkg/integrations"
)

// DefaultIndexURL is the crates.io sparse index.
const DefaultIndexURL = "https://index.crates.io"

// IndexEntry is one line of a sparse index file.
type IndexEntry struct {
	Name    string `json:"name"`
	Version string `json:"vers"`
	Yanked  bool   `json:"yanked"`
}

// Index reads a sparse registry index.
type Index struct {
	*integrations.Client
	baseURL string
}

// NewIndex creates an index client for url (empty means crates.io). A
// `sparse+` scheme prefix is accepted.
func NewIndex(backend cache.Cache, url string) *Index {
	if url == "" {
		url = DefaultIndexURL
	}
	url = strings.TrimSuffix(strings.TrimPrefix(url, "sparse+"), "/")
	headers := map[string]string{"User-Agent": buildinfo.UserAgent()}
	c := integrations.NewClient(backend, "index:"+url+":", 0, headers)
	// The publish waiter owns the polling backoff.
	c.SetRetry(1, 0)
	return &Index{Client: c, baseURL: url}
}

// Path returns the index path of a crate name.
func Path(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return ""
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return "3/" + name[:1] + "/" + name
	default:
		return name[:2] + "/" + name[2:4] + "/" + name
	}
}

// Versions returns every published entry of name. A crate that was never
// published has no entries.
func (i *Index) Versions(ctx context.Context, name string) ([]IndexEntry, error) {
	body, err := i.GetText(ctx, i.baseURL+"/"+Path(name))
	if errors.Is(err, integrations.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	var entries []IndexEntry
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("index %s: bad line: %w", name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// IsVisible reports whether name@version is in the index. Yanked versions
// count as visible: they were published and cannot be published again.
func (i *Index) IsVisible(ctx context.Context, name, version string) (bool, error) {
	want, err := semver.StrictNewVersion(version)
	if err != nil {
		return false, fmt.Errorf("version %q: %w", version, err)
	}
	var visible bool
	fetch := func() error {
		entries, err := i.Versions(ctx, name)
		if err != nil {
			return err
		}
		visible = false
		for _, e := range entries {
			if v, err := semver.StrictNewVersion(e.Version); err == nil && v.Equal(want) {
				visible = true
				break
			}
		}
		return nil
	}
	key := name + "@" + want.String()
	if err := i.Cached(ctx, key, &visible, fetch, func() bool { return visible }); err != nil {
		return false, err
	}
	return visible, nil
}
