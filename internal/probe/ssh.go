package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/hamed0406/fleethealth/internal/config"
)

// ErrChannel marks failures to establish the remote session: dial, handshake,
// auth or session open. The command never ran.
var ErrChannel = errors.New("remote channel unavailable")

// maxStateOutput caps how much stdout is kept from the state command.
const maxStateOutput = 4 << 10

// CommandRunner executes a read-only command on a remote host and returns its
// stdout. A non-zero exit is returned as an error that does not wrap
// ErrChannel.
type CommandRunner interface {
	Run(ctx context.Context, addr, cmd string) ([]byte, error)
}

// SSHRunner runs commands over SSH using public key auth only, so it can
// never block on a password or passphrase prompt.
type SSHRunner struct {
	User            string
	Port            int
	Signer          ssh.Signer
	HostKeyCallback ssh.HostKeyCallback
	ConnectTimeout  time.Duration
}

// NewSSHRunner loads the private key and known_hosts named by cfg.
func NewSSHRunner(cfg config.RemoteConfig) (*SSHRunner, error) {
	pem, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
	}

	var hostKeys ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		hostKeys = ssh.InsecureIgnoreHostKey()
	} else {
		hostKeys, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}

	return &SSHRunner{
		User:            cfg.User,
		Port:            cfg.Port,
		Signer:          signer,
		HostKeyCallback: hostKeys,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, nil
}

func (r *SSHRunner) Run(ctx context.Context, addr, cmd string) ([]byte, error) {
	target := net.JoinHostPort(addr, strconv.Itoa(r.Port))

	dctx, cancel := withTimeout(ctx, r.ConnectTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrChannel, target, err)
	}
	defer conn.Close()

	// Tearing down the TCP connection is what aborts a hung handshake or
	// command once ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if r.ConnectTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(r.ConnectTimeout))
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, target, &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.Signer)},
		HostKeyCallback: r.HostKeyCallback,
		Timeout:         r.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrChannel, target, err)
	}
	client := ssh.NewClient(cc, chans, reqs)
	defer client.Close()

	_ = conn.SetDeadline(time.Time{})
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrChannel, target, err)
	}
	defer sess.Close()

	var stdout limitedBuffer
	stdout.max = maxStateOutput
	sess.Stdout = &stdout
	if err := sess.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrChannel, ctx.Err())
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// limitedBuffer keeps the first max bytes and discards the rest without
// failing the writer.
type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
