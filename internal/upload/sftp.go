package upload

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/privacy"
)

// SFTPConfig holds the SFTP connection settings. Host keys are always
// checked against KnownHosts.
type SFTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	KeyFile    string
	KnownHosts string
	Timeout    time.Duration
}

// SFTPTarget uploads over an SSH connection.
type SFTPTarget struct {
	ssh    *ssh.Client
	client *sftp.Client
}

// NewSFTPTarget dials the server and opens an SFTP session.
func NewSFTPTarget(ctx context.Context, config SFTPConfig) (*SFTPTarget, error) {
	clientConfig, err := sshClientConfig(config)
	if err != nil {
		return nil, err
	}
	if config.Port == 0 {
		config.Port = 22
	}
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryNetwork).
			Component("upload").
			Context("address", addr).
			Build()
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errors.New(privacy.WrapError(err)).
			Category(errors.CategoryUpload).
			Component("upload").
			Context("operation", "ssh-handshake").
			Context("address", addr).
			Build()
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, errors.New(err).
			Category(errors.CategoryUpload).
			Component("upload").
			Context("operation", "sftp-session").
			Build()
	}
	return &SFTPTarget{ssh: sshClient, client: client}, nil
}

// NewSFTPTargetWithClient wraps an open SFTP client.
func NewSFTPTargetWithClient(client *sftp.Client) *SFTPTarget {
	return &SFTPTarget{client: client}
}

func sshClientConfig(config SFTPConfig) (*ssh.ClientConfig, error) {
	configError := func(format string, args ...any) error {
		return errors.Newf(format, args...).
			Category(errors.CategoryConfiguration).
			Component("upload").
			Build()
	}
	if config.Host == "" || config.Username == "" {
		return nil, configError("sftp upload needs a host and a username")
	}
	if config.KnownHosts == "" {
		return nil, configError("sftp upload needs a known_hosts file")
	}
	hostKeys, err := knownhosts.New(config.KnownHosts)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("upload").
			FileContext(config.KnownHosts, 0).
			Build()
	}

	var auth []ssh.AuthMethod
	switch {
	case config.KeyFile != "":
		key, err := os.ReadFile(config.KeyFile)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryConfiguration).
				Component("upload").
				FileContext(config.KeyFile, 0).
				Build()
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, configError("cannot parse private key %s: %v", config.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	case config.Password != "":
		auth = append(auth, ssh.Password(config.Password))
	default:
		return nil, configError("sftp upload needs a key file or a password")
	}

	return &ssh.ClientConfig{
		User:            config.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         config.Timeout,
	}, nil
}

// Name implements Target.
func (t *SFTPTarget) Name() string { return "sftp" }

// Upload implements Target. The file is written under a temporary name and
// renamed over remotePath.
func (t *SFTPTarget) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	if err := t.client.MkdirAll(path.Dir(remotePath)); err != nil {
		return 0, err
	}
	tmp := tempName(remotePath)
	dst, err := t.client.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = t.client.Remove(tmp)
		return 0, err
	}
	if err := t.rename(tmp, remotePath); err != nil {
		_ = t.client.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// rename prefers the overwriting posix-rename extension and falls back to
// remove plus rename on servers without it.
func (t *SFTPTarget) rename(from, to string) error {
	if err := t.client.PosixRename(from, to); err == nil {
		return nil
	}
	if _, err := t.client.Stat(to); err == nil {
		if err := t.client.Remove(to); err != nil {
			return err
		}
	}
	return t.client.Rename(from, to)
}

// Close implements Target.
func (t *SFTPTarget) Close() error {
	err := t.client.Close()
	if t.ssh != nil {
		err = errors.Join(err, t.ssh.Close())
	}
	return err
}
