package collection

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const keyPrefix = "nft/"

func ownerKey(id uint64) []byte {
	return []byte(keyPrefix + "owner/" + strconv.FormatUint(id, 10))
}

func holdingsKey(account common.Address) []byte {
	return append([]byte(keyPrefix+"holdings/"), account.Bytes()...)
}

func issuedKey() []byte {
	return []byte(keyPrefix + "issued")
}

func maxSupplyKey() []byte {
	return []byte(keyPrefix + "maxSupply")
}

func baseURIKey() []byte {
	return []byte(keyPrefix + "baseURI")
}

func contractURIKey() []byte {
	return []byte(keyPrefix + "contractURI")
}
