// Package resources bundles the default GPU profiles, architectures, and
// the all-GPU regression artifact with its feature scaler.
package resources

import "embed"

// FS holds the bundled resources under gpus/, architectures/, and model/.
//
//go:embed gpus/*.json architectures/*.json model/*.json
var FS embed.FS

// Names of the bundled regression artifact and feature scaler.
const (
	DefaultModel  = "model_all"
	DefaultScaler = "scaler_conv_all"
)
