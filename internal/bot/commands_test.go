package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckCooldownPerChatAndCommand(t *testing.T) {
	wait, ok := checkCooldown(100, "balance", 10*time.Second)
	assert.True(t, ok)
	assert.Zero(t, wait)

	// Immediate repeat is refused with the remaining wait.
	wait, ok = checkCooldown(100, "balance", 10*time.Second)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	// A different command and a different chat are unaffected.
	_, ok = checkCooldown(100, "portfolio", 30*time.Second)
	assert.True(t, ok)
	_, ok = checkCooldown(101, "balance", 10*time.Second)
	assert.True(t, ok)
}

func TestAccessCodePattern(t *testing.T) {
	assert.True(t, accessCodePattern.MatchString("JT-ABC123DEF456"))
	assert.False(t, accessCodePattern.MatchString("JT-short"))
	assert.False(t, accessCodePattern.MatchString("XX-ABC123DEF456"))
	assert.False(t, accessCodePattern.MatchString("JT-abc123def456"))
}

func TestAddressPattern(t *testing.T) {
	assert.True(t, addressPattern.MatchString("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"))
	assert.True(t, addressPattern.MatchString("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"))
	assert.False(t, addressPattern.MatchString("not an address"))
	assert.False(t, addressPattern.MatchString(""))
}

func TestNewShortID(t *testing.T) {
	id := newShortID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, newShortID())
}
