// Package upload copies run artefacts to remote storage over FTP or SFTP.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/observability/metrics"
)

// tempPrefix marks partially uploaded files; they are renamed into place
// once complete.
const tempPrefix = ".gwpe-upload-"

// Target is a remote store.
type Target interface {
	// Name returns the protocol name used in logs and metrics.
	Name() string
	// Upload copies localPath to remotePath, creating parent directories,
	// and returns the number of bytes written.
	Upload(ctx context.Context, localPath, remotePath string) (int64, error)
	Close() error
}

// Uploader copies files of one run below a remote base directory.
type Uploader struct {
	target   Target
	basePath string
	metrics  *metrics.NotificationMetrics
	log      logger.Logger
}

// New connects the target described by settings.
func New(ctx context.Context, settings conf.UploadSettings, m *metrics.NotificationMetrics, log logger.Logger) (*Uploader, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	timeout := time.Duration(settings.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		target Target
		err    error
	)
	switch settings.Type {
	case "ftp":
		target, err = NewFTPTarget(ctx, FTPConfig{
			Host:     settings.Host,
			Port:     settings.Port,
			Username: settings.Username,
			Password: settings.Password,
			Timeout:  timeout,
		})
	case "sftp":
		target, err = NewSFTPTarget(ctx, SFTPConfig{
			Host:       settings.Host,
			Port:       settings.Port,
			Username:   settings.Username,
			Password:   settings.Password,
			KeyFile:    settings.KeyFile,
			KnownHosts: settings.KnownHosts,
			Timeout:    timeout,
		})
	default:
		err = errors.Newf("unsupported upload type %q, expected ftp or sftp", settings.Type).
			Category(errors.CategoryConfiguration).
			Component("upload").
			Build()
	}
	if err != nil {
		return nil, err
	}
	return NewWithTarget(target, settings.RemotePath, m, log), nil
}

// NewWithTarget wraps an already connected target.
func NewWithTarget(target Target, basePath string, m *metrics.NotificationMetrics, log logger.Logger) *Uploader {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Uploader{target: target, basePath: basePath, metrics: m, log: log.Module("upload")}
}

// RemotePath returns where a local file of the run labelled label is stored.
func (u *Uploader) RemotePath(label, localPath string) string {
	return path.Join(u.basePath, label, filepath.Base(localPath))
}

// UploadFiles copies every file to <remotepath>/<label>/. Missing local
// files are skipped with a warning; the first transfer error stops the
// upload.
func (u *Uploader) UploadFiles(ctx context.Context, label string, files []string) error {
	for _, local := range files {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Category(errors.CategoryCancellation).
				Component("upload").
				Build()
		}
		if _, err := os.Stat(local); err != nil {
			u.log.Warn("skipping missing file", logger.String("path", local), logger.Error(err))
			continue
		}

		remote := u.RemotePath(label, local)
		start := time.Now()
		n, err := u.target.Upload(ctx, local, remote)
		if u.metrics != nil {
			u.metrics.RecordUpload(u.target.Name(), n, err)
		}
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryUpload).
				Component("upload").
				Context("protocol", u.target.Name()).
				Context("remote_path", remote).
				Build()
		}
		u.log.Info("file uploaded",
			logger.String("protocol", u.target.Name()),
			logger.String("remote_path", remote),
			logger.Int64("bytes", n),
			logger.Duration("duration", time.Since(start)))
	}
	return nil
}

// Close releases the connection.
func (u *Uploader) Close() error { return u.target.Close() }

// tempName returns the temporary upload name next to remotePath.
func tempName(remotePath string) string {
	return path.Join(path.Dir(remotePath), fmt.Sprintf("%s%d-%s", tempPrefix, os.Getpid(), path.Base(remotePath)))
}
