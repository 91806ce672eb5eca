package tofs

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalizer normalizes every external path before TOFS uses it:
// Unicode NFC, separator `\` -> `/`, and lowercasing when the workspace
// filesystem is case-insensitive. Disk access goes through ResolveOnDisk,
// which resolves symlinks and applies the workspace jail check after
// resolution (§4.1 Path canonicalization).
type Canonicalizer struct {
	root            string
	resolvedRoot    string
	caseInsensitive bool
}

// NewCanonicalizer probes root once at construction: the filesystem's
// case sensitivity is auto-detected, and the root's own symlink-resolved
// form is captured as the jail boundary.
func NewCanonicalizer(root string) *Canonicalizer {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		abs = resolved
	}
	return &Canonicalizer{
		root:            root,
		resolvedRoot:    abs,
		caseInsensitive: detectCaseInsensitive(root),
	}
}

// detectCaseInsensitive writes a lowercase probe file and stats its
// uppercase twin. If the probe cannot be written the platform default is
// assumed (case-insensitive on darwin/windows, sensitive elsewhere).
func detectCaseInsensitive(root string) bool {
	probe := filepath.Join(root, ".tofs-caseprobe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
	}
	defer os.Remove(probe)
	_, err := os.Stat(filepath.Join(root, ".TOFS-CASEPROBE"))
	return err == nil
}

// Normalize returns the canonical form of a workspace-relative path:
// NFC, forward slashes, "."-cleaned, lowercased on a case-insensitive
// filesystem. It does not touch disk.
func (c *Canonicalizer) Normalize(p string) string {
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	if c.caseInsensitive {
		p = strings.ToLower(p)
	}
	return p
}

// ResolveOnDisk maps a canonical relative path to the real on-disk
// location, resolving symlinks component by component (the open-probe
// equivalent of O_NOFOLLOW: each link is resolved atomically and the
// jail check runs on the fully resolved result, not the lexical path).
// A resolved path outside the workspace root is a Security error; a
// symlink cycle is a CyclicSymlink error; a missing file is NotFound.
func (c *Canonicalizer) ResolveOnDisk(rel string) (string, error) {
	full := filepath.Join(c.root, filepath.FromSlash(rel))
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if isTooManyLinks(err) {
			return "", newErr(KindCyclicSymlink, rel, err)
		}
		return "", newErr(KindNotFound, rel, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", newErr(KindNotFound, rel, err)
	}
	if !withinRoot(c.resolvedRoot, abs) {
		return "", newErr(KindSecurity, rel, nil)
	}
	return abs, nil
}

func isTooManyLinks(err error) bool {
	// syscall.ELOOP surfaces as "too many links" / "too many levels of
	// symbolic links" depending on platform; match the message rather
	// than importing syscall for one errno.
	msg := err.Error()
	return strings.Contains(msg, "too many links") || strings.Contains(msg, "too many levels")
}
