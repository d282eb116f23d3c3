package netscope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivateOrReserved(t *testing.T) {
	for name, tc := range map[string]struct {
		addr    string
		private bool
	}{
		"loopback":         {addr: "127.0.0.1", private: true},
		"rfc1918 10":       {addr: "10.20.30.40", private: true},
		"rfc1918 172.16":   {addr: "172.16.5.4", private: true},
		"rfc1918 172.31":   {addr: "172.31.255.1", private: true},
		"172.32 public":    {addr: "172.32.0.1", private: false},
		"rfc1918 192.168":  {addr: "192.168.1.100", private: true},
		"link-local":       {addr: "169.254.10.1", private: true},
		"multicast":        {addr: "224.0.0.251", private: true},
		"broadcast octet":  {addr: "8.8.8.255", private: true},
		"zero net":         {addr: "0.1.2.3", private: true},
		"reserved 240":     {addr: "250.1.1.1", private: true},
		"cgnat":            {addr: "100.64.1.1", private: true},
		"public dns":       {addr: "8.8.8.8", private: false},
		"public 1.2.3.4":   {addr: "1.2.3.4", private: false},
		"garbage":          {addr: "not-an-ip", private: true},
		"empty":            {addr: "", private: true},
		"partial":          {addr: "1.2.3", private: true},
		"v6 loopback":      {addr: "::1", private: true},
		"v6 unspecified":   {addr: "::", private: true},
		"v6 link-local":    {addr: "fe80::1%en0", private: true},
		"v6 ula":           {addr: "fd12:3456::1", private: true},
		"v6 multicast":     {addr: "ff02::1", private: true},
		"v6 public":        {addr: "2606:4700:4700::1111", private: false},
		"v6 bracketed":     {addr: "[2606:4700:4700::1111]", private: false},
		"v4 mapped public": {addr: "::ffff:8.8.8.8", private: false},
		"v4 mapped lan":    {addr: "::ffff:192.168.0.1", private: true},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.private, IsPrivateOrReserved(tc.addr), "IsPrivateOrReserved(%q)", tc.addr)
			assert.Equal(t, !tc.private, IsPublic(tc.addr))
		})
	}
}
