package flowhost

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/bft-labs/flowhost/pkg/connector"
	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/pipeline"
	"github.com/bft-labs/flowhost/pkg/poll"
	"github.com/bft-labs/flowhost/pkg/recovery"
)

// Version is the version of the flowhost host.
const Version = "1.0.0"

type moduleVersion struct {
	version    string
	minVersion string
}

// validateModuleVersions checks that all module versions are compatible.
func validateModuleVersions() error {
	modules := map[string]moduleVersion{
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
		"poll":      {poll.Version, poll.MinCompatibleVersion},
		"recovery":  {recovery.Version, recovery.MinCompatibleVersion},
		"pipeline":  {pipeline.Version, pipeline.MinCompatibleVersion},
		"connector": {connector.Version, connector.MinCompatibleVersion},
	}
	return checkModules(modules)
}

func checkModules(modules map[string]moduleVersion) error {
	for name, m := range modules {
		ok, err := isVersionCompatible(m.version, m.minVersion)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion.
func isVersionCompatible(version, minVersion string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", version, err)
	}
	minV, err := semver.NewVersion(minVersion)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", minVersion, err)
	}
	return !v.LessThan(minV), nil
}
