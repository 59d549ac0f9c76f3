//go:build embed
// +build embed

package main

import "embed"

const modelEmbedded = true

//go:embed model/model-best/model.onnx model/model-best/tokenizer.json model/model-best/config.json
var modelFiles embed.FS
