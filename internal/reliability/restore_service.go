package reliability

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// stagingDirName is where a restore archive waits for the next startup.
// Database files cannot be swapped under open connections, so restores
// are staged and applied before the databases are opened.
const stagingDirName = "restore-staging"

const stagedArchiveName = "restore.tar.gz"

// RestoreService stages backup archives for restore at next startup
type RestoreService struct {
	dataDir string
	log     zerolog.Logger
}

// NewRestoreService creates a new restore service
func NewRestoreService(dataDir string, log zerolog.Logger) *RestoreService {
	return &RestoreService{
		dataDir: dataDir,
		log:     log.With().Str("service", "restore").Logger(),
	}
}

// StageArchive places an archive in the staging directory. The restore
// is applied on the next startup.
func (s *RestoreService) StageArchive(archivePath string) error {
	stagingDir := filepath.Join(s.dataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	src, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	destPath := filepath.Join(stagingDir, stagedArchiveName)
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create staged archive: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to stage archive: %w", err)
	}

	s.log.Info().Str("archive", archivePath).Msg("Restore staged, will apply on next startup")
	return nil
}

// Pending reports whether a staged restore is waiting
func (s *RestoreService) Pending() bool {
	_, err := os.Stat(filepath.Join(s.dataDir, stagingDirName, stagedArchiveName))
	return err == nil
}

// CancelStaged removes a staged restore without applying it
func (s *RestoreService) CancelStaged() error {
	return os.RemoveAll(filepath.Join(s.dataDir, stagingDirName))
}

// ApplyStagedRestore checks for a staged archive and, if found, verifies
// it and swaps the database files in. Must be called before any database
// is opened. Returns true when a restore was applied.
func ApplyStagedRestore(dataDir string, log zerolog.Logger) (bool, error) {
	log = log.With().Str("service", "restore").Logger()

	stagedPath := filepath.Join(dataDir, stagingDirName, stagedArchiveName)
	if _, err := os.Stat(stagedPath); os.IsNotExist(err) {
		return false, nil
	}

	log.Warn().Msg("Staged restore found, applying before startup")

	extractDir := filepath.Join(dataDir, stagingDirName, "extracted")
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(filepath.Join(dataDir, stagingDirName))

	if err := extractArchive(stagedPath, extractDir); err != nil {
		return false, fmt.Errorf("failed to extract staged archive: %w", err)
	}

	metadata, err := readArchiveMetadata(filepath.Join(extractDir, "backup-metadata.json"))
	if err != nil {
		return false, fmt.Errorf("failed to read archive metadata: %w", err)
	}

	// Verify every checksum before touching any live file
	for _, db := range metadata.Databases {
		dbPath := filepath.Join(extractDir, db.Filename)
		checksum, err := fileChecksum(dbPath)
		if err != nil {
			return false, fmt.Errorf("failed to checksum %s: %w", db.Filename, err)
		}
		if checksum != db.Checksum {
			return false, fmt.Errorf("checksum mismatch for %s: expected %s, got %s",
				db.Filename, db.Checksum, checksum)
		}
	}

	for _, db := range metadata.Databases {
		livePath := filepath.Join(dataDir, db.Filename)

		// Move the current file aside so a failed swap is recoverable
		if _, err := os.Stat(livePath); err == nil {
			if err := os.Rename(livePath, livePath+".pre-restore"); err != nil {
				return false, fmt.Errorf("failed to move %s aside: %w", db.Filename, err)
			}
		}
		// Stale WAL and SHM files would corrupt the restored database
		os.Remove(livePath + "-wal")
		os.Remove(livePath + "-shm")

		if err := copyFile(filepath.Join(extractDir, db.Filename), livePath); err != nil {
			return false, fmt.Errorf("failed to install %s: %w", db.Filename, err)
		}

		log.Info().Str("database", db.Name).Msg("Database restored")
	}

	log.Info().
		Time("backup_timestamp", metadata.Timestamp).
		Str("app_version", metadata.AppVersion).
		Msg("Staged restore applied")

	return true, nil
}

func readArchiveMetadata(path string) (*ArchiveMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var metadata ArchiveMetadata
	if err := json.NewDecoder(file).Decode(&metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// extractArchive unpacks a tar.gz into destDir, rejecting path traversal
func extractArchive(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		name := filepath.Base(header.Name)
		if name != header.Name || strings.Contains(name, "..") {
			return fmt.Errorf("refusing archive entry with path: %s", header.Name)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, name)
		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if _, err := io.Copy(out, tarReader); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
		out.Close()
	}

	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
