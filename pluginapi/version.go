package pluginapi

import "github.com/Masterminds/semver/v3"

// CompatibleVersion reports whether peerVersion satisfies a caret range
// anchored at ProtoVersion ("^0.1.0"), mirroring the plugin-side check in
// original_source/gilbert-plugin/src/plugin.rs (VersionReq::parse(format!
// ("^{PROTO_VERSION}"))).
func CompatibleVersion(peerVersion string) (bool, error) {
	constraint, err := semver.NewConstraint("^" + ProtoVersion)
	if err != nil {
		return false, err
	}

	v, err := semver.NewVersion(peerVersion)
	if err != nil {
		return false, err
	}

	return constraint.Check(v), nil
}
