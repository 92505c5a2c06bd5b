package account

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/order_stake/internal/ledger"
)

func TestValidate(t *testing.T) {
	valid := []string{"ab", "alice", "alice.near", "a-b_c.d", "101", strings.Repeat("x", 64)}
	for _, id := range valid {
		assert.NoError(t, Validate(id), id)
	}

	invalid := []string{"", "a", "Alice", "-alice", "alice-", "al..ice", "al ice", "al@ice", strings.Repeat("x", 65)}
	for _, id := range invalid {
		err := Validate(id)
		require.Error(t, err, id)
		assert.True(t, errors.Is(err, ledger.ErrInvalidArgument), id)
	}
}

func TestSynthetic(t *testing.T) {
	assert.Equal(t, ledger.AccountID("101"), Synthetic(101, ""))
	assert.Equal(t, ledger.AccountID("7abcdef"), Synthetic(7, "AbCdEf"))

	long := strings.Repeat("z", 63)
	id := Synthetic(10000, long)
	assert.Len(t, string(id), MaxLength)
	assert.True(t, strings.HasPrefix(string(id), "10000z"))
	assert.NoError(t, Validate(string(id)))
}

func TestRandomSuffix(t *testing.T) {
	a, b := RandomSuffix(), RandomSuffix()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NoError(t, Validate("1"+a))
}
