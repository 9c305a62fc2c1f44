package policy

import (
	"fmt"
	"strings"
)

// Permissions is the bitmask of capabilities a pairing grants an operator.
// The flag values are wire constants carried inside session tickets.
type Permissions uint32

const (
	// PermViewScreen allows receiving the device's screen stream.
	PermViewScreen Permissions = 1 << 0
	// PermControlInput allows injecting keyboard and pointer input.
	PermControlInput Permissions = 1 << 1
	// PermClipboard allows bidirectional clipboard synchronization.
	PermClipboard Permissions = 1 << 2
	// PermFileTransfer allows file upload and download.
	PermFileTransfer Permissions = 1 << 3
	// PermAudioCapture allows receiving the device's audio stream.
	PermAudioCapture Permissions = 1 << 4
	// PermUnattended allows connecting without a local consent prompt.
	PermUnattended Permissions = 1 << 5

	// PermAll is every defined permission.
	PermAll = PermViewScreen | PermControlInput | PermClipboard |
		PermFileTransfer | PermAudioCapture | PermUnattended
)

var permNames = map[Permissions]string{
	PermViewScreen:   "view_screen",
	PermControlInput: "control_input",
	PermClipboard:    "clipboard",
	PermFileTransfer: "file_transfer",
	PermAudioCapture: "audio_capture",
	PermUnattended:   "unattended",
}

// allFlags lists single-bit permissions in ascending bit order.
var allFlags = []Permissions{
	PermViewScreen, PermControlInput, PermClipboard,
	PermFileTransfer, PermAudioCapture, PermUnattended,
}

// Has reports whether every bit of p is set in the mask.
func (m Permissions) Has(p Permissions) bool {
	return m&p == p
}

// Flags returns the individual single-bit permissions set in the mask.
func (m Permissions) Flags() []Permissions {
	var out []Permissions
	for _, f := range allFlags {
		if m&f != 0 {
			out = append(out, f)
		}
	}
	return out
}

// Name returns the stable name of a single-bit permission, or "unknown(n)".
func (m Permissions) Name() string {
	if name, ok := permNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%#x)", uint32(m))
}

// String renders the mask as a comma-joined list of flag names.
func (m Permissions) String() string {
	if m == 0 {
		return "none"
	}
	names := make([]string, 0, len(allFlags))
	for _, f := range m.Flags() {
		names = append(names, f.Name())
	}
	if rest := m &^ PermAll; rest != 0 {
		names = append(names, Permissions(rest).Name())
	}
	return strings.Join(names, ",")
}

// ParsePermission resolves a flag name to its bit value.
func ParsePermission(name string) (Permissions, error) {
	for f, n := range permNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", name)
}

// ParsePermissions resolves a comma-joined list of flag names to a mask.
func ParsePermissions(list string) (Permissions, error) {
	var mask Permissions
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f, err := ParsePermission(name)
		if err != nil {
			return 0, err
		}
		mask |= f
	}
	return mask, nil
}
