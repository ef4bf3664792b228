package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/models"
	"github.com/facette/natsort"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var importCmd = &cobra.Command{
	Use:   "import --event ID --uploader ID <dir>",
	Short: "Register the images of a directory as event photos",
	Long: `Walk a directory and create a photo record for every raster image in
it, in natural file name order. Paths under UPLOAD_DIR are stored relative
to it. Photos are not tagged; run "tag --event ID --untagged" afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Uint("event", 0, "Event id the photos belong to")
	importCmd.Flags().Uint("uploader", 0, "User id recorded as the uploader (defaults to the event owner)")
	_ = importCmd.MarkFlagRequired("event")
}

// collectImages returns the raster images below dir in natural order
func collectImages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if media.IsRasterImage(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	natsort.Sort(files)
	return files, nil
}

// storedImagePath makes path relative to uploadDir when it lies inside it
func storedImagePath(uploadDir, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(uploadDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return filepath.ToSlash(rel)
}

func runImport(cmd *cobra.Command, args []string) error {
	eventID := mustGetUint(cmd, "event")
	uploaderID := mustGetUint(cmd, "uploader")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	event, err := a.events.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("event %d not found", eventID)
		}
		return err
	}
	if uploaderID == 0 {
		uploaderID = event.OwnerID
	}

	files, err := collectImages(args[0])
	if err != nil {
		return err
	}

	created := 0
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			log.Printf("import: skipping %s: %v", path, err)
			continue
		}
		name := filepath.Base(path)
		size := info.Size()
		photo := &models.Photo{
			EventID:          event.ID,
			ImagePath:        storedImagePath(a.cfg.UploadDir, path),
			UploadedBy:       uploaderID,
			UploadedAt:       time.Now().Unix(),
			OriginalFilename: &name,
			FileSize:         &size,
		}
		if mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mimeType != "" {
			photo.MimeType = &mimeType
		}
		if err := a.photos.Create(photo); err != nil {
			return fmt.Errorf("failed to create photo for %s: %w", path, err)
		}
		created++
	}

	fmt.Printf("Imported %d photos into event %d (%s)\n", created, event.ID, event.EventCode)
	return nil
}
