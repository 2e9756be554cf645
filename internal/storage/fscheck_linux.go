//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs f_type magic numbers for remote filesystems.
var linuxFSNames = map[int64]string{
	0x6969:     "nfs",
	0x517B:     "smbfs",
	0xFF534D42: "cifs",
	0xFE534D42: "smb2",
}

func statFSType(existing string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(existing, &st); err != nil {
		return "", err
	}
	magic := int64(st.Type) & 0xFFFFFFFF
	if name, ok := linuxFSNames[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
