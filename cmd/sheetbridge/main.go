// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
