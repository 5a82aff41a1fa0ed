package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"autoria_scraper/config"
)

// Uploader ships a finished dump off the host. storage.S3Uploader
// implements it.
type Uploader interface {
	UploadFile(ctx context.Context, key, path string) (string, error)
}

// commandRunner runs an external program with extra environment entries.
type commandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// DumpService writes a timestamped snapshot of the listing database into a
// directory, optionally uploading it afterwards.
type DumpService struct {
	dir        string
	pg         *config.PostgresConfig
	sqlitePath string
	uploader   Uploader
	now        func() time.Time
	run        commandRunner
}

// NewPostgresDump dumps the Postgres database with pg_dump.
func NewPostgresDump(dir string, pg config.PostgresConfig) *DumpService {
	return &DumpService{dir: dir, pg: &pg, now: time.Now, run: runCommand}
}

// NewSQLiteDump copies the SQLite database file.
func NewSQLiteDump(dir, dbPath string) *DumpService {
	return &DumpService{dir: dir, sqlitePath: dbPath, now: time.Now, run: runCommand}
}

// SetUploader enables uploading each dump under dumps/<file name>.
func (s *DumpService) SetUploader(u Uploader) {
	s.uploader = u
}

// Dump writes one snapshot and returns its path. Upload failures are logged
// and do not fail the dump.
func (s *DumpService) Dump(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}

	stamp := s.now().Format("20060102_150405")

	var path string
	var err error
	if s.pg != nil {
		path = filepath.Join(s.dir, "dump_"+stamp+".sql")
		err = s.dumpPostgres(ctx, path)
	} else {
		path = filepath.Join(s.dir, "dump_"+stamp+".db")
		err = copyFile(s.sqlitePath, path)
	}
	if err != nil {
		return "", err
	}
	log.Printf("Database dump written to %s", path)

	if s.uploader != nil {
		key := "dumps/" + filepath.Base(path)
		location, err := s.uploader.UploadFile(ctx, key, path)
		if err != nil {
			log.Printf("Dump upload failed: %v", err)
		} else {
			log.Printf("Dump uploaded to %s", location)
		}
	}

	return path, nil
}

func (s *DumpService) dumpPostgres(ctx context.Context, path string) error {
	var args []string
	var env []string
	if s.pg.URL != "" {
		args = []string{"--dbname", s.pg.URL, "-f", path}
	} else {
		args = []string{
			"-h", s.pg.Host,
			"-p", fmt.Sprint(s.pg.Port),
			"-U", s.pg.User,
			"-d", s.pg.DB,
			"-f", path,
		}
		env = []string{"PGPASSWORD=" + s.pg.Password}
	}

	out, err := s.run(ctx, env, "pg_dump", args...)
	if err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, out)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
