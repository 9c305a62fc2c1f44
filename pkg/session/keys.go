package session

import (
	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
)

// HKDF info strings separating the two traffic directions. Key material
// for one direction can never decrypt the other.
const (
	kdfInfoDeviceToOperator = "zippyviewer/session/key/device-to-operator/v1"
	kdfInfoOperatorToDevice = "zippyviewer/session/key/operator-to-device/v1"
)

// Keys holds the directional AEAD keys of one session.
type Keys struct {
	DeviceToOperator []byte
	OperatorToDevice []byte
}

// DeriveKeys computes the per-session AEAD keys: HKDF over the ticket's
// binding nonce concatenated with the ticket id, expanded once per
// direction. Both sides derive identical keys from the same ticket.
func DeriveKeys(t *Ticket) (*Keys, error) {
	secret := make([]byte, 0, BindingSize+len(t.ID))
	secret = append(secret, t.Binding[:]...)
	secret = append(secret, t.ID[:]...)
	defer cryptoutil.Zero(secret)

	d2o, err := cryptoutil.HKDF(secret, nil, []byte(kdfInfoDeviceToOperator), cryptoutil.KeySize)
	if err != nil {
		return nil, err
	}
	o2d, err := cryptoutil.HKDF(secret, nil, []byte(kdfInfoOperatorToDevice), cryptoutil.KeySize)
	if err != nil {
		cryptoutil.Zero(d2o)
		return nil, err
	}
	return &Keys{DeviceToOperator: d2o, OperatorToDevice: o2d}, nil
}

// Destroy scrubs the key material.
func (k *Keys) Destroy() {
	cryptoutil.Zero(k.DeviceToOperator)
	cryptoutil.Zero(k.OperatorToDevice)
}
