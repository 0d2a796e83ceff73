//go:build windows

package cmd

import "context"

// watchVisibility is a no-op; there are no visibility signals on Windows.
func watchVisibility(ctx context.Context, setVisible func(bool)) {}
