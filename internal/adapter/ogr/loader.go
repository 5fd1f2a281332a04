package ogr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
)

// maxStderr bounds how much ogr2ogr output is carried in an error.
const maxStderr = 2048

var passwordRe = regexp.MustCompile(`(password\s*=\s*)(\S+)`)

// Config controls how ogr2ogr is invoked.
type Config struct {
	Binary    string
	PGString  string
	ExtraArgs []string
	Timeout   time.Duration
}

// Loader imports staged GeoJSON into PostGIS with ogr2ogr, overwriting the
// destination table. It implements pipeline.Loader.
type Loader struct {
	cfg    Config
	logger *slog.Logger
}

// NewLoader creates a Loader. An empty binary defaults to "ogr2ogr".
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if cfg.Binary == "" {
		cfg.Binary = "ogr2ogr"
	}
	return &Loader{cfg: cfg, logger: logger}
}

// Args returns the ogr2ogr argument list for a feed.
func (l *Loader) Args(feed domain.Feed) []string {
	args := []string{
		"-f", "PostgreSQL",
		"PG:" + l.cfg.PGString,
		"-overwrite",
	}
	if feed.Table != "" {
		args = append(args, "-nln", feed.Table)
	}
	args = append(args, l.cfg.ExtraArgs...)
	return append(args, feed.StagingPath)
}

// CommandLine renders the command for logs with any password masked.
func (l *Loader) CommandLine(feed domain.Feed) string {
	parts := append([]string{l.cfg.Binary}, l.Args(feed)...)
	for i, p := range parts {
		if strings.HasPrefix(p, "PG:") {
			parts[i] = fmt.Sprintf("PG:%q", passwordRe.ReplaceAllString(strings.TrimPrefix(p, "PG:"), "${1}***"))
		}
	}
	return strings.Join(parts, " ")
}

// Load runs ogr2ogr for the feed and blocks until it exits. A launch failure
// or non-zero exit wraps domain.ErrLoad.
func (l *Loader) Load(ctx context.Context, feed domain.Feed) error {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	l.logger.Debug("using ogr2ogr command", "feed", feed.Name, "command", l.CommandLine(feed))

	cmd := exec.CommandContext(ctx, l.cfg.Binary, l.Args(feed)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with status %d: %s",
				domain.ErrLoad, l.cfg.Binary, exitErr.ExitCode(), tail(stderr.String()))
		}
		return fmt.Errorf("%w: run %s: %w", domain.ErrLoad, l.cfg.Binary, err)
	}

	if out := strings.TrimSpace(stdout.String() + stderr.String()); out != "" {
		l.logger.Debug("ogr2ogr output", "feed", feed.Name, "output", tail(out))
	}
	l.logger.Debug("ogr2ogr finished", "feed", feed.Name, "duration", time.Since(start))
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
