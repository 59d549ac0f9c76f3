//go:build !embed
// +build !embed

package main

import "embed"

// Without the embed tag the model is read from disk only
const modelEmbedded = false

var modelFiles embed.FS
