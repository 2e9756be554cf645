//go:build darwin

package storage

import "syscall"

func statFSType(existing string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(existing, &st); err != nil {
		return "", err
	}
	name := make([]byte, 0, len(st.Fstypename))
	for _, c := range st.Fstypename {
		if c == 0 {
			break
		}
		name = append(name, byte(c))
	}
	return string(name), nil
}
