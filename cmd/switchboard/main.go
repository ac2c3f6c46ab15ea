// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the switchboard command.
package main

import (
	"context"
	"os"
)

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}
