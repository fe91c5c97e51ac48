package identity

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// secp256k1 generator point, a known-valid public key.
const (
	generatorX          = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	generatorCompressed = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
)

type fakeRPC struct {
	info    *rpc.OwnerInfo
	infoErr error
	csv1    string
	csv1Err error
}

func (f *fakeRPC) GetBlockNumber(context.Context) (int64, error)             { return 0, nil }
func (f *fakeRPC) GetBlock(context.Context, int64) (*rpc.Block, error)       { return nil, nil }
func (f *fakeRPC) GetBalance(context.Context, string, bool) (*big.Int, error) { return nil, nil }
func (f *fakeRPC) GetUTXOs(context.Context, string, bool) ([]rpc.UTXO, error) { return nil, nil }

func (f *fakeRPC) GetPublicKeyInfo(context.Context, string) (*rpc.OwnerInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeRPC) GetCSV1ForAddress(context.Context, string) (string, error) {
	return f.csv1, f.csv1Err
}

func testResolver(t *testing.T, chain *fakeRPC) *Resolver {
	t.Helper()
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	return NewResolver(chain, &chaincfg.MainNetParams, l)
}

func TestResolveFullBundle(t *testing.T) {
	chain := &fakeRPC{
		info: &rpc.OwnerInfo{
			MLDSAHash:     "0xAB12CD34",
			TweakedPubkey: generatorX,
			PublicKey:     generatorCompressed,
			P2OP:          "opnet1qqexample",
		},
		csv1: "bc1qcsvexample",
	}
	r := testResolver(t, chain)

	linkage, err := r.Resolve(context.Background(), "bc1qprimary")
	require.NoError(t, err)
	require.NotNil(t, linkage)

	assert.Equal(t, "ab12cd34", linkage.MLDSAHash)
	assert.Equal(t, "opnet1qqexample", linkage.P2OP)
	assert.Equal(t, "bc1qcsvexample", linkage.CSV1)
	assert.True(t, strings.HasPrefix(linkage.P2TR, "bc1p"), "taproot form, got %q", linkage.P2TR)
	assert.True(t, strings.HasPrefix(linkage.P2WPKH, "bc1q"), "segwit form, got %q", linkage.P2WPKH)
	assert.True(t, strings.HasPrefix(linkage.P2PKH, "1"), "legacy form, got %q", linkage.P2PKH)
}

func TestResolveNoOwnerRecord(t *testing.T) {
	r := testResolver(t, &fakeRPC{info: nil})
	linkage, err := r.Resolve(context.Background(), "bc1qunknown")
	require.NoError(t, err)
	assert.Nil(t, linkage)
}

func TestResolveRPCErrorPropagates(t *testing.T) {
	r := testResolver(t, &fakeRPC{infoErr: errors.New("rpc timeout")})
	_, err := r.Resolve(context.Background(), "bc1qprimary")
	assert.Error(t, err)
}

func TestResolveDerivationsFailIndependently(t *testing.T) {
	chain := &fakeRPC{
		info: &rpc.OwnerInfo{
			MLDSAHash:     "ab12",
			TweakedPubkey: "not-hex",
		},
		csv1Err: errors.New("csv path unavailable"),
	}
	r := testResolver(t, chain)

	linkage, err := r.Resolve(context.Background(), "bc1qprimary")
	require.NoError(t, err)
	require.NotNil(t, linkage)

	// The hash survives even when every optional form is underivable.
	assert.Equal(t, "ab12", linkage.MLDSAHash)
	assert.Empty(t, linkage.P2TR)
	assert.Empty(t, linkage.P2WPKH)
	assert.Empty(t, linkage.P2PKH)
	assert.Empty(t, linkage.CSV1)
}

func TestNetParams(t *testing.T) {
	for network, want := range map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"regtest": &chaincfg.RegressionNetParams,
	} {
		params, err := NetParams(network)
		require.NoError(t, err)
		assert.Equal(t, want, params)
	}
	_, err := NetParams("signet")
	assert.Error(t, err)
}
