package release

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
	"github.com/matzehuels/cratestack/pkg/observability"
)

// Apply writes every staged manifest edit. Either all edits land or the
// files touched so far are restored to their previous content. On success
// the in-memory workspace reflects the new versions and requirements.
func Apply(ctx context.Context, plan *Plan, logger *log.Logger) (err error) {
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()
	defer func() {
		observability.Release().OnManifestsWritten(ctx, len(plan.Edits), time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return errors.Interrupted(err, "manifest update")
	}

	if err := writeEdits(plan.Edits, logger); err != nil {
		return err
	}
	plan.commit()
	return nil
}

// writeEdits writes edits as one unit. Manifests that changed on disk
// since staging are refused before anything is written.
func writeEdits(edits []ManifestEdit, logger *log.Logger) error {
	for _, e := range edits {
		current, err := os.ReadFile(e.Path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "read manifest")
		}
		if !bytes.Equal(current, e.Before) {
			return errors.New(errors.ErrCodeConfig, "%s changed on disk since it was planned", e.Path)
		}
	}

	var written []ManifestEdit
	for _, e := range edits {
		if err := manifest.WriteFile(e.Path, e.After); err != nil {
			rollback(written, logger)
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", e.Path)
		}
		written = append(written, e)
		logger.Debug("manifest updated", "path", e.Path)
	}
	return nil
}

func rollback(written []ManifestEdit, logger *log.Logger) {
	for i := len(written) - 1; i >= 0; i-- {
		e := written[i]
		if err := manifest.WriteFile(e.Path, e.Before); err != nil {
			logger.Error("could not restore manifest", "path", e.Path, "err", err)
		}
	}
}

// commit mirrors the written edits in the workspace model.
func (p *Plan) commit() {
	for name, v := range p.Versions {
		if pkg, ok := p.ws.Packages[name]; ok {
			pkg.Version = v
		}
	}
	if p.inherited != nil {
		for _, pkg := range p.ws.Packages {
			if pkg.InheritsVersion {
				pkg.Version = p.inherited
			}
		}
	}
	for _, u := range p.updates {
		if u.pkg == "" {
			p.ws.RootDependencies[u.index].Req = u.req
			continue
		}
		p.ws.Packages[u.pkg].Dependencies[u.index].Req = u.req
	}
	// Members that inherit through `workspace = true` follow the root table.
	for _, pkg := range p.ws.Packages {
		for i, d := range pkg.Dependencies {
			if !d.Workspace {
				continue
			}
			for _, r := range p.ws.RootDependencies {
				if r.Key == d.Key {
					pkg.Dependencies[i].Req = r.Req
				}
			}
		}
	}
}
