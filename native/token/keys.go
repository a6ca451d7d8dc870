package token

import (
	"github.com/ethereum/go-ethereum/common"
)

const keyPrefix = "token/"

func balanceKey(symbol string, account common.Address) []byte {
	key := append([]byte(keyPrefix+symbol+"/bal/"), account.Bytes()...)
	return key
}

func allowanceKey(symbol string, owner, spender common.Address) []byte {
	key := append([]byte(keyPrefix+symbol+"/allow/"), owner.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

func supplyKey(symbol string) []byte {
	return []byte(keyPrefix + symbol + "/supply")
}
