// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const notFoundMarker = "could not be found"

// securityBackend stores items with the macOS security command. The account is the
// service name and the keychain "service" is the item key.
type securityBackend struct {
	path string
}

func newSecurityBackend() (*securityBackend, error) {
	path, err := exec.LookPath("security")
	if err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityBackend{path: path}, nil
}

func (s *securityBackend) run(args ...string) (string, string, error) {
	cmd := exec.Command(s.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Set stores a key-value pair, replacing any existing entry.
func (s *securityBackend) Set(key, value string) error {
	_ = s.Delete(key)
	_, stderr, err := s.run("add-generic-password", "-a", ServiceName, "-s", key, "-w", value, "-U")
	if err != nil {
		return fmt.Errorf("failed to store %q in keychain: %s: %w", key, strings.TrimSpace(stderr), err)
	}
	return nil
}

// Get retrieves a value.
func (s *securityBackend) Get(key string) (string, error) {
	stdout, stderr, err := s.run("find-generic-password", "-a", ServiceName, "-s", key, "-w")
	if err != nil {
		if strings.Contains(stderr, notFoundMarker) {
			return "", errors.New("key not found")
		}
		return "", fmt.Errorf("failed to retrieve from keychain: %s: %w", strings.TrimSpace(stderr), err)
	}
	return strings.TrimSpace(stdout), nil
}

// Delete removes a key. Missing keys are ignored.
func (s *securityBackend) Delete(key string) error {
	_, stderr, err := s.run("delete-generic-password", "-a", ServiceName, "-s", key)
	if err != nil && !strings.Contains(stderr, notFoundMarker) {
		return fmt.Errorf("failed to delete from keychain: %s: %w", strings.TrimSpace(stderr), err)
	}
	return nil
}
