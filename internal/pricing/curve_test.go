package pricing

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func eth(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

func TestTokensForEthFirstWholeEth(t *testing.T) {
	// 1e24 total supply, empty curve, 1 ETH in: reserve halves, half the supply out
	total := eth(1_000_000)
	out, err := TokensForEth(total, sdkmath.ZeroInt(), sdkmath.ZeroInt(), eth(1))
	require.NoError(t, err)
	require.Equal(t, eth(500_000), out)
}

func TestTokensForEthPriceRises(t *testing.T) {
	total := eth(1_000_000)
	raised := sdkmath.ZeroInt()
	sold := sdkmath.ZeroInt()

	var prev sdkmath.Int
	for i := 0; i < 5; i++ {
		out, err := TokensForEth(total, raised, sold, eth(1))
		require.NoError(t, err)
		require.True(t, out.IsPositive())
		if i > 0 {
			require.True(t, out.LT(prev), "equal spends must yield strictly less as the curve fills")
		}
		prev = out
		raised = raised.Add(eth(1))
		sold = sold.Add(out)
	}
}

func TestRoundTripNeverProfits(t *testing.T) {
	total := eth(1_000_000)
	ethIn := sdkmath.NewInt(123_456_789_123_456_789)

	bought, err := TokensForEth(total, sdkmath.ZeroInt(), sdkmath.ZeroInt(), ethIn)
	require.NoError(t, err)

	back, err := EthForTokens(total, ethIn, bought, bought)
	require.NoError(t, err)
	require.True(t, back.LTE(ethIn), "selling everything back must not mint wei: in %s out %s", ethIn, back)
}

func TestQuotesRoundTowardThePool(t *testing.T) {
	total := eth(1_000_000)

	// 3 wei on an empty curve: the exact output is 3e6 minus a fraction, so the
	// quote must come back one unit short of three million, never rounded up to it
	out, err := TokensForEth(total, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2_999_999), out)

	// a five-unit position against an empty pool quotes zero wei, not one
	back, err := EthForTokens(total, sdkmath.ZeroInt(), sdkmath.NewInt(5), sdkmath.NewInt(5))
	require.NoError(t, err)
	require.True(t, back.IsZero(), "a dust sell must quote zero, got %s", back)
}

func TestTokensForEthRejectsZeroAndSoldOut(t *testing.T) {
	total := eth(1_000_000)

	_, err := TokensForEth(total, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrZeroEthIn)

	_, err = TokensForEth(total, eth(5), total, eth(1))
	require.ErrorIs(t, err, ErrCurveSoldOut)

	_, err = TokensForEth(total, sdkmath.Int{}, sdkmath.ZeroInt(), eth(1))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEthForTokensEdges(t *testing.T) {
	total := eth(1_000_000)

	out, err := EthForTokens(total, eth(1), eth(500_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	require.True(t, out.IsZero())

	_, err = EthForTokens(total, eth(1), eth(10), eth(11))
	require.ErrorIs(t, err, ErrOverSell)
}

func TestEthAtSupplyDomain(t *testing.T) {
	total := eth(1_000_000)

	_, err := EthAtSupply(total, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrSupplyOutOfRange)

	_, err = EthAtSupply(total, total)
	require.ErrorIs(t, err, ErrSupplyOutOfRange)

	// at half supply exactly one virtual offset has been raised
	raised, err := EthAtSupply(total, eth(500_000))
	require.NoError(t, err)
	require.Equal(t, eth(1), raised)
}

func TestMarginalPriceGrowsWithSupply(t *testing.T) {
	total := eth(1_000_000)

	low, err := MarginalPriceAt(total, eth(100_000))
	require.NoError(t, err)
	high, err := MarginalPriceAt(total, eth(800_000))
	require.NoError(t, err)
	require.True(t, high.GT(low))

	_, err = MarginalPriceAt(total, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrSupplyOutOfRange)
}
