package migrate

import (
	"crypto/sha256"
	"encoding/hex"
)

// BuildInfo identifies the distribution a running binary came from.
// A rebuilt or rebranded binary carries different values.
type BuildInfo struct {
	Product string
	Author  string
	License string
}

// Expected is the canonical build identity. Binaries whose embedded info
// diverges from it run with the filesystem locked read-only unless an
// unlock token is supplied.
var Expected = BuildInfo{
	Product: "deskfs",
	Author:  "deskfs project",
	License: "MIT",
}

// unlockHash is sha256 of the development unlock token. Only the hash ships
// in the binary; the token itself does not.
const unlockHash = "ea94583255d303db0bec86ec5dc33e2091bc48183223f5f46a6e1d030ec35431"

// Compromised reports whether the binary's identity diverges from the
// expected one. A valid unlock token clears the check regardless, so forks
// under active development can run unlocked.
func Compromised(info BuildInfo, unlockToken string) bool {
	if unlockToken != "" && hashToken(unlockToken) == unlockHash {
		return false
	}
	return info != Expected
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
