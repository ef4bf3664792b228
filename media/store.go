package media

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store saves and removes image artifacts owned by this service (selfies).
type Store interface {
	// Save writes data under the asset type's directory and returns the
	// relative path. An empty filenameHint, or one that is only an
	// extension such as ".png", gets a generated UUID name.
	Save(assetType AssetType, relativeDirHint string, filenameHint string, data io.Reader) (string, error)
	// Delete removes an artifact; deleting a missing artifact succeeds.
	Delete(relativePath string) error
	// GetFullPath resolves a relative artifact path to an absolute one.
	GetFullPath(relativePath string) (string, error)
	// EnsureDir makes sure the asset type's directory exists.
	EnsureDir(assetType AssetType) (string, error)
}

// LocalStorage implements Store on the local filesystem
type LocalStorage struct {
	basePath        string
	resolvedPathMap map[AssetType]string
}

// NewLocalStorage creates the base directory and maps asset types to subdirectories
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	ls := &LocalStorage{basePath: absBasePath, resolvedPathMap: make(map[AssetType]string)}
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !ls.within(fullPath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		ls.resolvedPathMap[assetType] = fullPath
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return ls, nil
}

func (ls *LocalStorage) within(path string) bool {
	clean := filepath.Clean(path)
	return clean == ls.basePath || strings.HasPrefix(clean, ls.basePath+string(filepath.Separator))
}

func (ls *LocalStorage) assetDir(assetType AssetType) (string, error) {
	if dirPath, ok := ls.resolvedPathMap[assetType]; ok {
		return dirPath, nil
	}
	dirPath := filepath.Join(ls.basePath, string(assetType))
	if !ls.within(dirPath) {
		return "", fmt.Errorf("asset type '%s' resolves outside base path", assetType)
	}
	return dirPath, nil
}

func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath, err := ls.assetDir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

func (ls *LocalStorage) Save(assetType AssetType, relativeDirHint string, filenameHint string, data io.Reader) (string, error) {
	targetDir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}

	if relativeDirHint != "" {
		targetDir = filepath.Join(targetDir, relativeDirHint)
		if !ls.within(targetDir) {
			return "", fmt.Errorf("invalid relative directory hint '%s'", relativeDirHint)
		}
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create sub-directory '%s': %w", targetDir, err)
		}
	}

	filename := filenameHint
	if filename == "" || strings.HasPrefix(filename, ".") {
		filename = uuid.NewString() + strings.ToLower(filenameHint)
	}
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid filename '%s'", filenameHint)
	}

	fullSavePath := filepath.Join(targetDir, filename)
	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}

	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}

	log.Printf("media.store: Saved asset to %s", fullSavePath)
	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	log.Printf("media.store: Deleted asset %s", fullPath)
	return nil
}

func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("invalid path: '%s' must be relative", relativePath)
	}
	fullPath := filepath.Join(ls.basePath, filepath.Clean(filepath.FromSlash(relativePath)))
	if !ls.within(fullPath) || fullPath == ls.basePath {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return fullPath, nil
}

var _ Store = (*LocalStorage)(nil)
