// Package signer implements the transaction signer of §4.I: it adds this
// wallet's signature to an unsigned (or partially signed) versioned
// transaction returned by the aggregator, assuming this wallet is the fee
// payer and therefore the first signer slot.
//
// Ported from original_source/src/trading/signer.rs's TransactionSigner:
// base58-decode the private key, base64-decode the transaction, sign the
// message bytes, and overwrite (or append) signature slot zero. The
// decode/sign/encode primitives themselves come from
// github.com/gagliardetto/solana-go, which the teacher already depends on
// for Solana keys, rather than hand-rolling bincode framing.
package signer

import (
	"encoding/base64"

	"github.com/gagliardetto/solana-go"

	"github.com/relaysol/mirror/internal/mirrorerr"
)

// Signer holds the wallet keypair used to countersign aggregator-built
// transactions.
type Signer struct {
	privateKey solana.PrivateKey
}

// New decodes a base58 private key (the format Solana CLI keypairs and
// PRIVATE_KEY_BYTES both use) into a Signer.
func New(privateKeyBase58 string) (*Signer, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Signer, "invalid private key", err)
	}
	return &Signer{privateKey: key}, nil
}

// PublicKey returns this wallet's address.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.privateKey.PublicKey()
}

// Sign decodes a base64-encoded versioned transaction, signs its message
// with this wallet's key, writes the signature into slot zero (assuming
// this wallet is the fee payer and therefore first signer), and returns
// the re-encoded transaction.
func (s *Signer) Sign(base64Tx string) (string, error) {
	tx, err := solana.TransactionFromBase64(base64Tx)
	if err != nil {
		return "", mirrorerr.Wrap(mirrorerr.Signer, "failed to decode transaction", err)
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", mirrorerr.Wrap(mirrorerr.Signer, "failed to marshal transaction message", err)
	}

	signature, err := s.privateKey.Sign(messageBytes)
	if err != nil {
		return "", mirrorerr.Wrap(mirrorerr.Signer, "failed to sign transaction message", err)
	}

	if len(tx.Signatures) == 0 {
		tx.Signatures = append(tx.Signatures, signature)
	} else {
		tx.Signatures[0] = signature
	}

	signedBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", mirrorerr.Wrap(mirrorerr.Signer, "failed to marshal signed transaction", err)
	}

	return base64.StdEncoding.EncodeToString(signedBytes), nil
}
