package legacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrOpenSSLNotFound is returned when no openssl binary is in PATH.
var ErrOpenSSLNotFound = errors.New("legacy: openssl not found in PATH")

// ConvertWithOpenSSL converts a BER-encoded PKCS#12 file to DER using
// OpenSSL. The file is decrypted and re-encrypted with the same password,
// so the result carries a fresh MAC and OpenSSL's current default
// algorithms.
//
// password is the PKCS#12 password (empty string for no password).
//
// Requires OpenSSL 3.x with the legacy provider for files protected with
// RC2 or other legacy ciphers.
func ConvertWithOpenSSL(ctx context.Context, data []byte, password string) ([]byte, error) {
	opensslPath, err := exec.LookPath("openssl")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSSLNotFound, err)
	}

	// The intermediate PEM holds unencrypted keys; the directory is only
	// accessible to the current user and is removed on return.
	dir, err := os.MkdirTemp("", "pfx-legacy-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	passPath := filepath.Join(dir, "pass.txt")
	inPath := filepath.Join(dir, "in.p12")
	pemPath := filepath.Join(dir, "intermediate.pem")
	outPath := filepath.Join(dir, "out.p12")
	defer scrub(pemPath)
	defer scrub(passPath)

	if err := os.WriteFile(passPath, []byte(password), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write password file: %w", err)
	}
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input data: %w", err)
	}

	// Step 1: legacy P12 to PEM
	if err := run(ctx, opensslPath, "decode",
		"pkcs12",
		"-in", inPath,
		"-out", pemPath,
		"-nodes",
		"-passin", "file:"+passPath,
		"-legacy",
	); err != nil {
		return nil, err
	}

	// Step 2: PEM back to P12 (DER)
	if err := run(ctx, opensslPath, "encode",
		"pkcs12",
		"-export",
		"-in", pemPath,
		"-out", outPath,
		"-passout", "file:"+passPath,
	); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read output file: %w", err)
	}
	return result, nil
}

func run(ctx context.Context, openssl, step string, args ...string) error {
	cmd := exec.CommandContext(ctx, openssl, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("openssl pkcs12 %s: %w", step, ctxErr)
		}
		return fmt.Errorf("openssl pkcs12 %s failed: %w\nStderr: %s", step, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// scrub overwrites a file with zeros before it is removed.
func scrub(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, make([]byte, fi.Size()), 0o600)
}
