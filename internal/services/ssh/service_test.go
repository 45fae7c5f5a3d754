package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error { return nil }

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error { return nil }

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

// sessionFactory returns a factory whose sessions run output for every command.
func sessionFactory(output func(cmd string) ([]byte, error)) *mockClientFactory {
	return &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{combinedOutputFunc: output}, nil
				},
			}, nil
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.SSHShutdownConfig {
	return models.SSHShutdownConfig{
		Host:       "192.168.0.109",
		Port:       22,
		Username:   "root",
		PrivateKey: generateTestKey(t),
	}
}

func TestShutdownCommand(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.SSHShutdownConfig
		want string
	}{
		{"linux now", models.SSHShutdownConfig{}, "sudo shutdown -h now"},
		{"linux delayed", models.SSHShutdownConfig{ShutdownDelay: 2}, "sudo shutdown -h +2"},
		{"windows now", models.SSHShutdownConfig{OS: "windows"}, "shutdown /s /t 0"},
		{"windows delayed", models.SSHShutdownConfig{OS: "windows", ShutdownDelay: 1}, "shutdown /s /t 60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShutdownCommand(tt.cfg))
		})
	}
}

func TestShutdown_Success(t *testing.T) {
	var capturedCommand, capturedAddr string

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							capturedCommand = cmd
							return []byte("Shutdown scheduled"), nil
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "Shutdown scheduled")
	assert.Nil(t, result.Error)
	assert.Equal(t, "sudo shutdown -h now", capturedCommand)
	assert.Equal(t, "192.168.0.109:22", capturedAddr)
}

func TestShutdown_DroppedConnectionIsNotAnError(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), sessionFactory(func(cmd string) ([]byte, error) {
		return nil, errors.New("wait: remote command exited without exit status")
	}))

	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Nil(t, result.Error)
}

func TestShutdown_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to connect")
}

func TestShutdown_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Shutdown(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Contains(t, result.Error.Error(), "failed to create session")
}

func TestShutdown_NoPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	result, err := svc.Shutdown(context.Background(), models.SSHShutdownConfig{Host: "192.168.0.109", Port: 22})

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Contains(t, result.Error.Error(), "no private key")
}

func TestShutdown_InvalidPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	cfg := testConfig(t)
	cfg.PrivateKey = []byte("invalid key")

	result, err := svc.Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Contains(t, result.Error.Error(), "failed to parse private key")
}

func TestShutdown_ContextCancelled(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			time.Sleep(100 * time.Millisecond)
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := svc.Shutdown(ctx, testConfig(t))

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Equal(t, context.DeadlineExceeded, result.Error)
}

func TestTestConnection(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), sessionFactory(func(cmd string) ([]byte, error) {
		if cmd == "echo OK" {
			return []byte("OK\n"), nil
		}
		return nil, errors.New("unexpected command")
	}))

	result, err := svc.TestConnection(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
	assert.Nil(t, result.Error)
}

func TestTestConnection_CommandFailed(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), sessionFactory(func(cmd string) ([]byte, error) {
		return nil, errors.New("exit status 127")
	}))

	result, err := svc.TestConnection(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.Contains(t, result.Error.Error(), "test command failed")
}

func TestDispatch(t *testing.T) {
	calls := 0
	svc := NewWithClientFactory(testLogger(), sessionFactory(func(cmd string) ([]byte, error) {
		calls++
		return nil, nil
	}))

	sshCfg := testConfig(t)
	result, err := svc.Dispatch(context.Background(), models.ShutdownConfig{
		Method: models.ShutdownMethodSSH,
		SSH:    &sshCfg,
	})

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Nil(t, result.Error)
	assert.Equal(t, 1, calls)
}

func TestDispatch_NotConfigured(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	_, err := svc.Dispatch(context.Background(), models.ShutdownConfig{Method: models.ShutdownMethodSSH})

	assert.Error(t, err)
}

func TestBuildConfig_WithKeyPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	sshConfig, err := svc.buildConfig(models.SSHShutdownConfig{Username: "admin", KeyPath: keyPath})

	require.NoError(t, err)
	assert.Equal(t, "admin", sshConfig.User)
}

func TestBuildConfig_KeyPathNotFound(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	_, err := svc.buildConfig(models.SSHShutdownConfig{KeyPath: "/nonexistent/path/id_rsa"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}
