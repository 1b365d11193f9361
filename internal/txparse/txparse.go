// Package txparse implements the transaction parser of §4.E: it turns the
// raw jsonParsed getTransaction payload into balance deltas per account and
// per token mint.
//
// Grounded directly on original_source/src/processor/transaction.rs's
// parse_transaction: the account-key table construction (accountKeys as
// strings or {pubkey} objects, extended by loadedAddresses writable then
// readonly), the lockstep preBalances/postBalances diff, and the
// union-of-mints preTokenBalances/postTokenBalances diff with the
// nonzero-pre-decimals tie-break are all ported unchanged.
package txparse

import (
	"encoding/json"

	"github.com/relaysol/mirror/internal/mirrorerr"
)

// AccountChange is the lamport balance delta for one account key.
type AccountChange struct {
	Pubkey    string
	PreLamports  int64
	PostLamports int64
	Delta        int64
}

// TokenDelta is the balance delta for one (account, mint) pair in raw token
// base units, alongside the mint's decimals. Account is the token account
// address itself (accountKeys[accountIndex]), matching how
// preTokenBalances/postTokenBalances key their entries; Owner is the SPL
// token account's owning wallet.
type TokenDelta struct {
	Account    string
	Mint       string
	Owner      string
	Decimals   uint8
	PreAmount  int64
	PostAmount int64
	Delta      int64
}

// ParsedTransaction holds everything detection needs: the SOL-lamport
// deltas per account and the token-unit deltas per mint, plus the block
// time used for block-lag reporting.
type ParsedTransaction struct {
	Signature      string
	BlockTime      int64
	AccountChanges []AccountChange
	TokenDeltas    []TokenDelta
}

type rpcAccountKey struct {
	Pubkey string `json:"pubkey"`
}

type rpcLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type rpcTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UiTokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type rpcMessage struct {
	AccountKeys json.RawMessage `json:"accountKeys"`
}

type rpcMeta struct {
	Err               json.RawMessage   `json:"err"`
	PreBalances       []int64           `json:"preBalances"`
	PostBalances      []int64           `json:"postBalances"`
	PreTokenBalances  []rpcTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rpcTokenBalance `json:"postTokenBalances"`
	LoadedAddresses   *rpcLoadedAddresses `json:"loadedAddresses"`
}

type rpcTransactionEnvelope struct {
	Message rpcMessage `json:"message"`
}

type rpcTransaction struct {
	Transaction *rpcTransactionEnvelope `json:"transaction"`
	Meta        *rpcMeta                `json:"meta"`
	BlockTime   *int64                  `json:"blockTime"`
}

// Parse turns a getTransaction result payload into a ParsedTransaction. A
// JSON "null" body (not yet indexed) is reported as NotFoundError, distinct
// from a malformed body (ParseError), so callers can retry only the former.
func Parse(signature string, raw json.RawMessage) (*ParsedTransaction, error) {
	trimmed := trimSpace(raw)
	if string(trimmed) == "null" || len(trimmed) == 0 {
		return nil, mirrorerr.New(mirrorerr.NotFound, "transaction not yet indexed: "+signature)
	}

	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Parse, "failed to unmarshal transaction envelope", err)
	}

	if tx.Transaction == nil || tx.Meta == nil {
		return nil, mirrorerr.New(mirrorerr.Parse, "transaction missing transaction or meta field: "+signature)
	}

	accountKeys, err := decodeAccountKeys(tx.Transaction.Message.AccountKeys)
	if err != nil {
		return nil, mirrorerr.Wrap(mirrorerr.Parse, "failed to decode accountKeys", err)
	}
	if tx.Meta.LoadedAddresses != nil {
		accountKeys = append(accountKeys, tx.Meta.LoadedAddresses.Writable...)
		accountKeys = append(accountKeys, tx.Meta.LoadedAddresses.Readonly...)
	}

	parsed := &ParsedTransaction{Signature: signature}
	if tx.BlockTime != nil {
		parsed.BlockTime = *tx.BlockTime
	}

	parsed.AccountChanges = diffBalances(accountKeys, tx.Meta.PreBalances, tx.Meta.PostBalances)
	parsed.TokenDeltas = diffTokenBalances(tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances, accountKeys)

	return parsed, nil
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// decodeAccountKeys accepts accountKeys entries as either bare pubkey
// strings or {"pubkey": "..."} objects, matching both legacy and versioned
// jsonParsed responses.
func decodeAccountKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asStrings []string
	if err := json.Unmarshal(raw, &asStrings); err == nil {
		return asStrings, nil
	}

	var asObjects []rpcAccountKey
	if err := json.Unmarshal(raw, &asObjects); err != nil {
		return nil, err
	}
	keys := make([]string, len(asObjects))
	for i, o := range asObjects {
		keys[i] = o.Pubkey
	}
	return keys, nil
}

func diffBalances(accountKeys []string, pre, post []int64) []AccountChange {
	n := len(pre)
	if len(post) < n {
		n = len(post)
	}

	changes := make([]AccountChange, 0, n)
	for i := 0; i < n; i++ {
		delta := post[i] - pre[i]
		if delta == 0 {
			continue
		}
		pubkey := ""
		if i < len(accountKeys) {
			pubkey = accountKeys[i]
		}
		changes = append(changes, AccountChange{
			Pubkey:       pubkey,
			PreLamports:  pre[i],
			PostLamports: post[i],
			Delta:        delta,
		})
	}
	return changes
}

// diffTokenBalances diffs over the union of mints present in either side,
// matching accounts by accountIndex. Decimals prefer the pre-side entry
// when it is present and nonzero, falling back to the post-side entry,
// since closed accounts report zero decimals on the side where the
// balance no longer exists.
func diffTokenBalances(pre, post []rpcTokenBalance, accountKeys []string) []TokenDelta {
	type key struct {
		accountIndex int
		mint         string
	}

	preByKey := make(map[key]rpcTokenBalance, len(pre))
	for _, p := range pre {
		preByKey[key{p.AccountIndex, p.Mint}] = p
	}
	postByKey := make(map[key]rpcTokenBalance, len(post))
	for _, p := range post {
		postByKey[key{p.AccountIndex, p.Mint}] = p
	}

	seen := make(map[key]bool, len(preByKey)+len(postByKey))
	order := make([]key, 0, len(preByKey)+len(postByKey))
	for _, p := range pre {
		k := key{p.AccountIndex, p.Mint}
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}
	for _, p := range post {
		k := key{p.AccountIndex, p.Mint}
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}

	deltas := make([]TokenDelta, 0, len(order))
	for _, k := range order {
		preEntry, hasPre := preByKey[k]
		postEntry, hasPost := postByKey[k]

		var preAmount, postAmount int64
		var decimals uint8
		var owner string

		if hasPre {
			preAmount = parseAmount(preEntry.UiTokenAmount.Amount)
			decimals = preEntry.UiTokenAmount.Decimals
			owner = preEntry.Owner
		}
		if hasPost {
			postAmount = parseAmount(postEntry.UiTokenAmount.Amount)
			if decimals == 0 {
				decimals = postEntry.UiTokenAmount.Decimals
			}
			if owner == "" {
				owner = postEntry.Owner
			}
		}

		delta := postAmount - preAmount
		if delta == 0 {
			continue
		}

		account := ""
		if k.accountIndex >= 0 && k.accountIndex < len(accountKeys) {
			account = accountKeys[k.accountIndex]
		}

		deltas = append(deltas, TokenDelta{
			Account:    account,
			Mint:       k.mint,
			Owner:      owner,
			Decimals:   decimals,
			PreAmount:  preAmount,
			PostAmount: postAmount,
			Delta:      delta,
		})
	}
	return deltas
}

func parseAmount(s string) int64 {
	var v int64
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v
}
