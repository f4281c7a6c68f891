package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/mod/semver"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/telemetry"
)

// versionTokenRe matches the pinned git tag inside the asdf installation
// docs. Only the version token is consumed; the install command itself is
// constructed locally and never taken from remote content.
var versionTokenRe = regexp.MustCompile(
	`git clone https://github\.com/asdf-vm/asdf\.git[^\n]*--branch (v\d{1,2}\.\d{1,2}\.\d{1,2})`)

// Resolution is the outcome of resolving the version manager release to
// install: the pinned tag plus the locally built clone invocation.
type Resolution struct {
	Version    string
	GitRepo    string
	InstallDir string
	ResolvedAt time.Time
}

// CloneCommand returns the git invocation that installs the resolved release.
func (r Resolution) CloneCommand() Command {
	return Command{
		Name: "git",
		Args: []string{"clone", r.GitRepo, r.InstallDir, "--branch", r.Version},
	}
}

// Resolver discovers the current asdf release tag from the published
// installation docs.
type Resolver struct {
	client  *http.Client
	docsURL string
	gitRepo string
	log     *telemetry.Logger
}

// maxDocsBody caps how much of the docs page is read.
const maxDocsBody = 4 << 20

// NewResolver creates a resolver. timeout bounds the whole fetch; when it
// elapses the run aborts before any plugin or runtime work starts.
func NewResolver(docsURL, gitRepo string, timeout time.Duration, log *telemetry.Logger) *Resolver {
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		docsURL: docsURL,
		gitRepo: gitRepo,
		log:     log,
	}
}

// Resolve fetches the docs page and extracts the pinned release tag. The tag
// must be a valid semantic version; anything else is a resolution failure.
func (r *Resolver) Resolve(ctx context.Context, installDir string) (*Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.docsURL, nil)
	if err != nil {
		return nil, engine.NewResolutionError(fmt.Sprintf("build request for %s", r.docsURL), err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, engine.NewResolutionError(fmt.Sprintf("fetch %s", r.docsURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, engine.NewResolutionError(
			fmt.Sprintf("fetch %s: unexpected status %d", r.docsURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocsBody))
	if err != nil {
		return nil, engine.NewResolutionError(fmt.Sprintf("read %s", r.docsURL), err)
	}

	m := versionTokenRe.FindSubmatch(body)
	if m == nil {
		return nil, engine.NewResolutionError(
			fmt.Sprintf("no pinned install command found at %s", r.docsURL), nil)
	}

	version := string(m[1])
	if !semver.IsValid(version) {
		return nil, engine.NewResolutionError(
			fmt.Sprintf("extracted version %q is not a valid semantic version", version), nil)
	}

	if r.log != nil {
		r.log.Infof("resolved asdf %s from %s", version, r.docsURL)
	}

	return &Resolution{
		Version:    version,
		GitRepo:    r.gitRepo,
		InstallDir: installDir,
		ResolvedAt: time.Now(),
	}, nil
}
