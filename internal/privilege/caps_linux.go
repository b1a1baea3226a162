package privilege

import "golang.org/x/sys/unix"

func hasNetAdmin() (bool, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false, err
	}
	return capEffective(data, unix.CAP_NET_ADMIN), nil
}

// capEffective reports whether capability c is in the effective set. Version 3
// splits the 64-bit mask across two 32-bit words.
func capEffective(data [2]unix.CapUserData, c int) bool {
	if c < 0 || c >= 64 {
		return false
	}
	return data[c/32].Effective&(1<<uint(c%32)) != 0
}
