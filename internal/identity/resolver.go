package identity

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Resolver turns a primary address into its full identity bundle: the MLDSA
// hash plus every address form derivable for the configured network. Each
// derivation may fail independently; a missing form is simply absent from
// the linkage.
type Resolver struct {
	rpc       models.ChainRPC
	params    *chaincfg.Params
	appLogger *logger.Logger
}

// NetParams maps the NETWORK env value onto chain parameters.
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", network)
}

func NewResolver(rpc models.ChainRPC, params *chaincfg.Params, appLogger *logger.Logger) *Resolver {
	return &Resolver{rpc: rpc, params: params, appLogger: appLogger}
}

// Resolve asks the chain for the owner-info record behind an address.
// Returns (nil, nil) when the chain holds no key material yet; the caller
// retries on a later tick.
func (r *Resolver) Resolve(ctx context.Context, address string) (*models.IdentityLinkage, error) {
	info, err := r.rpc.GetPublicKeyInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("owner-info lookup for %s failed: %w", address, err)
	}
	if info == nil {
		return nil, nil
	}

	linkage := &models.IdentityLinkage{
		MLDSAHash:     models.NormalizeHash(info.MLDSAHash),
		TweakedPubkey: models.NormalizeHash(info.TweakedPubkey),
		P2OP:          info.P2OP,
	}

	if linkage.TweakedPubkey != "" {
		if addr, err := r.taprootAddress(linkage.TweakedPubkey); err == nil {
			linkage.P2TR = addr
		} else {
			r.appLogger.Debug("Taproot derivation unavailable", "address", address, "error", err)
		}
	}

	if info.PublicKey != "" {
		pubKeyBytes, err := hex.DecodeString(models.NormalizeHash(info.PublicKey))
		if err != nil {
			r.appLogger.Debug("Owner record carries malformed public key", "address", address, "error", err)
		} else {
			keyHash := btcutil.Hash160(pubKeyBytes)
			if addr, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, r.params); err == nil {
				linkage.P2WPKH = addr.EncodeAddress()
			}
			if addr, err := btcutil.NewAddressPubKeyHash(keyHash, r.params); err == nil {
				linkage.P2PKH = addr.EncodeAddress()
			}
		}
	}

	// The CSV-timelock form comes from a distinct node-side derivation.
	if csv1, err := r.rpc.GetCSV1ForAddress(ctx, address); err == nil && csv1 != "" {
		linkage.CSV1 = csv1
	} else if err != nil {
		r.appLogger.Debug("CSV1 derivation unavailable", "address", address, "error", err)
	}

	return linkage, nil
}

func (r *Resolver) taprootAddress(tweakedHex string) (string, error) {
	keyBytes, err := hex.DecodeString(tweakedHex)
	if err != nil {
		return "", fmt.Errorf("malformed tweaked pubkey: %w", err)
	}
	// Accept both 32-byte x-only and 33-byte compressed encodings.
	if len(keyBytes) == 33 {
		keyBytes = keyBytes[1:]
	}
	if len(keyBytes) != 32 {
		return "", fmt.Errorf("tweaked pubkey has unexpected length %d", len(keyBytes))
	}
	pubKey, err := schnorr.ParsePubKey(keyBytes)
	if err != nil {
		return "", fmt.Errorf("invalid tweaked pubkey: %w", err)
	}
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(pubKey), r.params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
