package region

import (
	"testing"

	"github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp"
)

func TestResolveKnownRegion(t *testing.T) {
	url, err := Resolve("westus", usp.EndpointDefault)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if url == "" {
		t.Fatal("Resolve returned an empty URL for a known region")
	}
}

func TestResolveCDSDKDiffersFromDefault(t *testing.T) {
	def, err := Resolve("eastus", usp.EndpointDefault)
	if err != nil {
		t.Fatalf("Resolve(default): %v", err)
	}
	cdsdk, err := Resolve("eastus", usp.EndpointCDSDK)
	if err != nil {
		t.Fatalf("Resolve(cdsdk): %v", err)
	}
	if def == cdsdk {
		t.Fatalf("default and cdsdk URLs are identical: %q", def)
	}
}

func TestResolveUnknownRegion(t *testing.T) {
	if _, err := Resolve("does-not-exist", usp.EndpointDefault); err == nil {
		t.Fatal("Resolve(unknown region) succeeded, want error")
	}
}

func TestKnownListsBundledRegions(t *testing.T) {
	known := Known()
	if len(known) == 0 {
		t.Fatal("Known() returned no regions")
	}
	found := false
	for _, r := range known {
		if r == "westus" {
			found = true
		}
	}
	if !found {
		t.Fatal(`Known() does not include "westus"`)
	}
}
