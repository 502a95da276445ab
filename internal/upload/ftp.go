package upload

import (
	"context"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/privacy"
)

// FTPConfig holds the FTP connection settings.
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// FTPTarget uploads over a single FTP control connection.
type FTPTarget struct {
	config FTPConfig
	conn   *ftp.ServerConn
}

// NewFTPTarget dials and logs in.
func NewFTPTarget(ctx context.Context, config FTPConfig) (*FTPTarget, error) {
	if config.Host == "" {
		return nil, errors.Newf("ftp upload needs a host").
			Category(errors.CategoryConfiguration).
			Component("upload").
			Build()
	}
	if config.Port == 0 {
		config.Port = 21
	}
	t := &FTPTarget{config: config}
	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return t, nil
}

// Name implements Target.
func (t *FTPTarget) Name() string { return "ftp" }

// connect establishes a connection to the FTP server with context support.
func (t *FTPTarget) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(t.config.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryNetwork).
			Component("upload").
			Context("address", addr).
			Build()
	}
	if t.config.Username != "" {
		if err := conn.Login(t.config.Username, t.config.Password); err != nil {
			_ = conn.Quit()
			return nil, errors.New(privacy.WrapError(err)).
				Category(errors.CategoryUpload).
				Component("upload").
				Context("operation", "login").
				Build()
		}
	}
	return conn, nil
}

// Upload implements Target. The file is stored under a temporary name and
// renamed into place.
func (t *FTPTarget) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if err := t.makeDirs(path.Dir(remotePath)); err != nil {
		return 0, err
	}
	tmp := tempName(remotePath)
	if err := t.conn.Stor(tmp, f); err != nil {
		_ = t.conn.Delete(tmp)
		return 0, err
	}
	if err := t.conn.Rename(tmp, remotePath); err != nil {
		_ = t.conn.Delete(tmp)
		return 0, err
	}
	return info.Size(), nil
}

// makeDirs creates dir and its parents, ignoring "already exists" replies.
func (t *FTPTarget) makeDirs(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	var current string
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		if err := t.conn.MakeDir(current); err != nil && !isDirectoryExistsError(err) {
			return err
		}
	}
	return nil
}

func isDirectoryExistsError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "exists") || strings.HasPrefix(s, "550")
}

// Close implements Target.
func (t *FTPTarget) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Quit()
}
