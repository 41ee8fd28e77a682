// Package region resolves short Azure region codes to USP endpoint URLs.
//
// This is additive to [github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp.Context.SetEndpoint],
// which still accepts a raw URL directly; [Resolve] exists so callers don't
// have to hand-copy endpoint URL templates out of documentation the way
// every caller of the original C implementation had to.
package region

import (
	_ "embed"
	"fmt"

	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp"
	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var regionsYAML []byte

type presetFile struct {
	Regions map[string]struct {
		Default string `yaml:"default"`
		CDSDK   string `yaml:"cdsdk"`
	} `yaml:"regions"`
}

var presets presetFile

func init() {
	if err := yaml.Unmarshal(regionsYAML, &presets); err != nil {
		panic("region: failed to parse embedded regions.yaml: " + err.Error())
	}
}

// Resolve returns the endpoint URL for region and kind. It fails if region
// is not one of the bundled presets.
func Resolve(region string, kind usp.EndpointKind) (string, error) {
	entry, ok := presets.Regions[region]
	if !ok {
		return "", fmt.Errorf("region: unknown region %q", region)
	}
	if kind == usp.EndpointCDSDK {
		return entry.CDSDK, nil
	}
	return entry.Default, nil
}

// Known returns the list of bundled region codes.
func Known() []string {
	out := make([]string, 0, len(presets.Regions))
	for k := range presets.Regions {
		out = append(out, k)
	}
	return out
}
