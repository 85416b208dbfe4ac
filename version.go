package abd

import "github.com/blang/semver"

// CURRENT_VERSION is the daemon's own release version, independent of the
// wire protocol_version negotiated per-transport.
var CURRENT_VERSION = semver.MustParse("1.0.0")

// ProtocolVersion is the wire-format generation a transport has settled on.
// v1 validates the legacy data_checksum field; v2 ignores it.
type ProtocolVersion uint32

const (
	ProtocolV1 ProtocolVersion = 1
	ProtocolV2 ProtocolVersion = 2
)

func (v ProtocolVersion) Valid() bool {
	return v == ProtocolV1 || v == ProtocolV2
}
