package snapshot

import (
	"encoding/hex"
	"net"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// machineDomainKey separates machine identity hashes from any other use of
// the hash function.
var machineDomainKey = [32]byte{'q', 'c', 's', 't', 'a', 't', 'i', 'o', 'n', ' ', 'm', 'a', 'c', 'h', 'i', 'n', 'e', ' ', 'i', 'd', ' ', 'v', '1'}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// MachineID returns a stable identifier for this workstation: a short hash
// of the hardware addresses of its physical interfaces, or the sanitized
// hostname when no usable interface exists. A non-empty override wins.
func MachineID(override string) string {
	if id := sanitizeID(override); id != "" {
		return id
	}
	if macs := hardwareAddrs(); len(macs) > 0 {
		return HashIdentity(strings.Join(macs, ","))
	}
	if host, err := os.Hostname(); err == nil {
		if id := sanitizeID(host); id != "" {
			return id
		}
	}
	return "unknown"
}

// HashIdentity hashes value into the 16 hex character form used in file names.
func HashIdentity(value string) string {
	hasher, err := blake3.NewKeyed(machineDomainKey[:])
	if err != nil {
		panic("snapshot: keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(value))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

func hardwareAddrs() []string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var macs []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}
	sort.Strings(macs)
	return macs
}

func sanitizeID(value string) string {
	value = strings.TrimSpace(value)
	return strings.Trim(unsafeIDChars.ReplaceAllString(value, "_"), "_")
}
