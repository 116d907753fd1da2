package state

import (
	"strconv"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

var (
	bankBalancePrefix   = []byte("bank/balance/")
	bankAllowancePrefix = []byte("bank/allowance/")
	bankTokenPrefix     = []byte("bank/token/")

	farmGlobalsKeyBytes  = []byte("farm/globals")
	farmPoolPrefix       = []byte("farm/pool/")
	farmPoolAssetPrefix  = []byte("farm/pool-asset/")
	farmStakePrefix      = []byte("farm/stake/")
	farmPoolUsersPrefix  = []byte("farm/pool-users/")
	farmPoolMemberPrefix = []byte("farm/pool-member/")

	vaultMetaPrefix    = []byte("vault/meta/")
	vaultAccountPrefix = []byte("vault/account/")
	vaultUsersPrefix   = []byte("vault/users/")
	vaultMemberPrefix  = []byte("vault/member/")

	strategyPositionPrefix = []byte("strategy/position/")

	pausedModulesKey = []byte("admin/paused-modules")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, part...)
	}
	return buf
}

func addrPart(addr crypto.Address) []byte {
	return addr.Bytes()
}

func assetPart(asset types.Asset) []byte {
	return []byte(asset.Key())
}

func poolPart(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

// BankBalanceKey returns the storage key of a holder's asset balance.
func BankBalanceKey(asset types.Asset, holder crypto.Address) []byte {
	return joinKey(bankBalancePrefix, assetPart(asset), addrPart(holder))
}

// BankAllowanceKey returns the storage key of a token allowance.
func BankAllowanceKey(token, owner, spender crypto.Address) []byte {
	return joinKey(bankAllowancePrefix, addrPart(token), addrPart(owner), addrPart(spender))
}

// FarmPoolKey returns the storage key of a pool record.
func FarmPoolKey(id uint64) []byte {
	return joinKey(farmPoolPrefix, poolPart(id))
}

// FarmStakeKey returns the storage key of a user's stake in a pool.
func FarmStakeKey(pid uint64, user crypto.Address) []byte {
	return joinKey(farmStakePrefix, poolPart(pid), addrPart(user))
}

// VaultAccountKey returns the storage key of a vault depositor record.
func VaultAccountKey(vault, user crypto.Address) []byte {
	return joinKey(vaultAccountPrefix, addrPart(vault), addrPart(user))
}
