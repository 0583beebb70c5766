package ipam

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestReserveLowestFree(t *testing.T) {
	p, err := NewPool("10.0.0.0/29", "10.0.0.1", nil)
	assert.NilError(t, err)

	ip, err := p.Reserve("")
	assert.NilError(t, err)
	assert.Equal(t, ip, "10.0.0.2") // .0 network, .1 gateway reserved
}

func TestReserveHintWhenFree(t *testing.T) {
	p, err := NewPool("10.0.0.0/29", "10.0.0.1", nil)
	assert.NilError(t, err)

	ip, err := p.Reserve("10.0.0.5")
	assert.NilError(t, err)
	assert.Equal(t, ip, "10.0.0.5")
}

func TestReserveNeverReturnsGatewayOrBroadcast(t *testing.T) {
	p, err := NewPool("10.0.0.0/29", "10.0.0.1", nil)
	assert.NilError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ { // /29 has 8 addrs: .0 net, .1 gw, .7 broadcast -> 5 usable
		ip, err := p.Reserve("")
		assert.NilError(t, err)
		seen[ip] = true
	}
	assert.Check(t, !seen["10.0.0.0"])
	assert.Check(t, !seen["10.0.0.1"])
	assert.Check(t, !seen["10.0.0.7"])

	_, err = p.Reserve("")
	assert.Equal(t, err, ErrExhausted)
}

func TestReleaseIsIdempotentAndGatewayIsProtected(t *testing.T) {
	p, err := NewPool("10.0.0.0/29", "10.0.0.1", nil)
	assert.NilError(t, err)

	ip, err := p.Reserve("")
	assert.NilError(t, err)
	p.Release(ip)
	p.Release(ip) // idempotent

	p.Release("10.0.0.1") // gateway release is a no-op
	reReserved := false
	for i := 0; i < 10; i++ {
		got, err := p.Reserve("")
		if err != nil {
			break
		}
		if got == "10.0.0.1" {
			reReserved = true
		}
	}
	assert.Check(t, !reReserved)
}

func TestRestoresAllocatedSet(t *testing.T) {
	p, err := NewPool("10.0.0.0/29", "10.0.0.1", []string{"10.0.0.2", "10.0.0.3"})
	assert.NilError(t, err)

	ip, err := p.Reserve("")
	assert.NilError(t, err)
	assert.Equal(t, ip, "10.0.0.4")
}

func TestExhaustionNeverDuplicates(t *testing.T) {
	p, err := NewPool("10.0.0.0/30", "10.0.0.1", nil) // only .2 usable
	assert.NilError(t, err)

	ip, err := p.Reserve("")
	assert.NilError(t, err)
	assert.Equal(t, ip, "10.0.0.2")

	_, err = p.Reserve("")
	assert.Equal(t, err, ErrExhausted)
}
