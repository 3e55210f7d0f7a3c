package cache

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
)

// GenerateKey joins a namespace and its parts with ':'.
func GenerateKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// HashKey returns the hex MD5 of the parts. Parts are NUL separated so
// ("ab","c") and ("a","bc") differ.
func HashKey(parts ...string) string {
	h := md5.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
