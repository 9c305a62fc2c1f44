package pairing

import (
	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

// Transcript tags for the pairing proof. Stable wire constants.
const (
	tagInviteID     uint32 = 0x5001
	tagDeviceID     uint32 = 0x5002
	tagOperatorID   uint32 = 0x5003
	tagOperatorSign uint32 = 0x5004
	tagOperatorKex  uint32 = 0x5005
	tagRequested    uint32 = 0x5006
)

// proofTranscript hashes the fields the proof binds to the invite
// secret: the invite, the device, and the requesting operator's full
// identity and permission ask.
func proofTranscript(inviteID, deviceID identity.ID, operator identity.Identity, requested policy.Permissions) [transcript.HashSize]byte {
	b := transcript.New()
	b.Append(tagInviteID, inviteID[:])
	b.Append(tagDeviceID, deviceID[:])
	b.Append(tagOperatorID, operator.ID[:])
	b.Append(tagOperatorSign, operator.SigningPub)
	b.Append(tagOperatorKex, operator.KexPub)
	b.AppendUint32(tagRequested, uint32(requested))
	return b.Finish()
}

// BuildProof computes the pairing proof: HMAC-SHA256 keyed by the invite
// secret over the canonical transcript of the request. The operator side
// computes this; the device recomputes and compares.
func BuildProof(secret []byte, inviteID, deviceID identity.ID, operator identity.Identity, requested policy.Permissions) []byte {
	hash := proofTranscript(inviteID, deviceID, operator, requested)
	return cryptoutil.MAC(secret, hash[:])
}

// verifyProof checks a presented proof in constant time.
func verifyProof(secret, proof []byte, inviteID, deviceID identity.ID, operator identity.Identity, requested policy.Permissions) bool {
	hash := proofTranscript(inviteID, deviceID, operator, requested)
	return cryptoutil.VerifyMAC(secret, hash[:], proof)
}
