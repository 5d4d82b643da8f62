// Package envfile locates and loads the per-(client, environment) dotenv
// file that carries credentials and base URLs for a run.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

// Name returns the dotenv file name for a client and environment.
func Name(client, env string) string {
	return fmt.Sprintf(".env-%s-%s", client, env)
}

// Find walks from dir up to the filesystem root and returns the path of the
// first file called name. It returns "" when no such file exists.
func Find(name, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", dir, err)
	}
	for {
		candidate := filepath.Join(abs, name)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("checking %q: %w", candidate, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

// Load finds the dotenv file for client and env starting at dir and merges it
// into the process environment. Variables already set are left untouched. A
// missing file is not an error; the returned path is then empty.
func Load(client, env, dir string, logger *zap.Logger) (string, error) {
	name := Name(client, env)
	path, err := Find(name, dir)
	if err != nil {
		return "", err
	}
	if path == "" {
		logger.Debug("No env file found.", zap.String("expected", name), zap.String("dir", dir))
		return "", nil
	}
	if err := gotenv.Load(path); err != nil {
		return "", fmt.Errorf("loading env file %q: %w", path, err)
	}
	logger.Debug("Loaded env file.", zap.String("path", path))
	return path, nil
}
