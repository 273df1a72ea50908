package git

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

// source-code extensions worth sending to the model
var allowedExtensions = map[string]bool{
	".c": true, ".cpp": true, ".py": true, ".js": true, ".java": true,
	".cs": true, ".go": true, ".rb": true, ".php": true, ".h": true, ".hpp": true,
}

// Fetcher clones a repository branch into a fresh temporary workspace and
// extracts a bounded set of source files. The workspace is removed on every
// exit path.
type Fetcher struct {
	GitPath     string // git executable, defaults to "git"
	BaseDir     string // parent for clone workspaces, defaults to os.TempDir()
	MaxFileSize int64  // per-file cap, larger files are dropped
	MaxRepoSize int64  // total clone cap, larger repos fail
}

func NewFetcher(maxFileSize, maxRepoSize int64) *Fetcher {
	if maxFileSize <= 0 {
		maxFileSize = 1 << 20
	}
	if maxRepoSize <= 0 {
		maxRepoSize = 100 << 20
	}
	return &Fetcher{
		GitPath:     "git",
		BaseDir:     os.TempDir(),
		MaxFileSize: maxFileSize,
		MaxRepoSize: maxRepoSize,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, repoURL, branch string) ([]domain.SourceUnit, error) {
	workdir := filepath.Join(f.BaseDir, "vulnscan-"+uuid.NewString())
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			log.Printf("failed to remove clone workspace %s: %v", workdir, err)
		}
	}()

	if err := f.clone(ctx, repoURL, branch, workdir); err != nil {
		return nil, err
	}

	size, err := dirSize(workdir)
	if err != nil {
		return nil, err
	}
	if size > f.MaxRepoSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", domain.ErrRepoTooLarge, size, f.MaxRepoSize)
	}

	units, err := f.collect(workdir)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, domain.ErrNoSourceFiles
	}

	log.Printf("cloned %s (%s): %d source files, %d bytes", repoURL, branch, len(units), size)
	return units, nil
}

func (f *Fetcher) clone(ctx context.Context, repoURL, branch, workdir string) error {
	gitPath := f.GitPath
	if gitPath == "" {
		gitPath = "git"
	}

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, workdir)

	// jalankan git command
	out, err := exec.CommandContext(ctx, gitPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrCloneFailed, strings.TrimSpace(string(out)))
	}
	return nil
}

// collect walks the clone, skipping version-control metadata, keeping files
// whose extension is allowed and whose size is under the per-file cap.
// Unreadable files are logged and skipped, never fatal.
func (f *Fetcher) collect(root string) ([]domain.SourceUnit, error) {
	var units []domain.SourceUnit

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !allowedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > f.MaxFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("failed to read %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		units = append(units, domain.SourceUnit{
			Path:    filepath.ToSlash(rel),
			Content: string(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}
