package bank

func activeKey() []byte     { return []byte("bank/active") }
func collectionKey() []byte { return []byte("bank/collection") }
func maxPerTxKey() []byte   { return []byte("bank/maxPerTransaction") }
