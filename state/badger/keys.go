package badger

import (
	"github.com/govm-net/starksim/core"
)

// Key prefixes. Every key is one prefix byte followed by 32-byte felts.
const (
	prefixHead     = 'h'
	prefixClass    = 'c'
	prefixContract = 'a'
	prefixStorage  = 's'
	prefixReceipt  = 'r'
)

// headKey holds the latest block header.
// Format: 'h'
func headKey() []byte {
	return []byte{prefixHead}
}

// classKey generates a key for a declared class.
// Format: 'c' + class_hash
func classKey(hash core.Felt) []byte {
	return feltKey(prefixClass, hash)
}

// contractKey generates a key for a deployed contract.
// Format: 'a' + contract_address
func contractKey(address core.Felt) []byte {
	return feltKey(prefixContract, address)
}

// storageKey generates a key for a storage slot.
// Format: 's' + contract_address + storage_key
func storageKey(contract, key core.Felt) []byte {
	return feltKey(prefixStorage, contract, key)
}

// receiptKey generates a key for a receipt.
// Format: 'r' + tx_hash
func receiptKey(txHash core.Felt) []byte {
	return feltKey(prefixReceipt, txHash)
}

func feltKey(prefix byte, fs ...core.Felt) []byte {
	key := make([]byte, 1, 1+32*len(fs))
	key[0] = prefix
	for _, f := range fs {
		b := f.Bytes32()
		key = append(key, b[:]...)
	}
	return key
}
