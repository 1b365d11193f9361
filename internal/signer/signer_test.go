package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUnsignedTx(t *testing.T, payer solana.PublicKey) string {
	t.Helper()

	recipient := solana.NewWallet().PublicKey()
	instr := system.NewTransferInstruction(1_000_000, payer, recipient).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instr},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewRejectsInvalidPrivateKey(t *testing.T) {
	_, err := New("not-valid-base58-!!!")
	assert.Error(t, err)
}

func TestSignFillsFirstSignatureSlot(t *testing.T) {
	wallet := solana.NewWallet()
	s, err := New(wallet.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), s.PublicKey())

	unsignedB64 := buildUnsignedTx(t, wallet.PublicKey())

	signedB64, err := s.Sign(unsignedB64)
	require.NoError(t, err)

	signedTx, err := solana.TransactionFromBase64(signedB64)
	require.NoError(t, err)
	require.Len(t, signedTx.Signatures, 1)

	messageBytes, err := signedTx.Message.MarshalBinary()
	require.NoError(t, err)
	payerPub := wallet.PublicKey()
	pub := ed25519.PublicKey(payerPub[:])
	assert.True(t, ed25519.Verify(pub, messageBytes, signedTx.Signatures[0][:]))
}

func TestSignRejectsMalformedTransaction(t *testing.T) {
	wallet := solana.NewWallet()
	s, err := New(wallet.PrivateKey.String())
	require.NoError(t, err)

	_, err = s.Sign("not-base64!!")
	assert.Error(t, err)
}
